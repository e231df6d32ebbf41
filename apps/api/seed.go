package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ensureAgent creates the agent or resets its password, role and active flag.
func (a *App) ensureAgent(ctx context.Context, username, password, email, role string) (*Agent, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	if !containsString(agentRoles, role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()
	return a.agents.UpsertByUsername(ctx, Agent{
		Username:     username,
		Name:         username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// bootstrapAgent ensures the admin configured through the environment exists.
func (a *App) bootstrapAgent(ctx context.Context) error {
	if a.cfg.BootstrapAgentUsername == "" {
		return nil
	}
	agent, err := a.ensureAgent(ctx, a.cfg.BootstrapAgentUsername, a.cfg.BootstrapAgentPassword, a.cfg.BootstrapAgentEmail, "admin")
	if err != nil {
		return err
	}
	a.log.Info("bootstrap agent ready", "username", agent.Username)
	return nil
}

// seedSampleTours inserts the demo catalog when no tours exist yet and
// returns the number of tours created.
func (a *App) seedSampleTours(ctx context.Context) (int, error) {
	count, err := a.tours.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		a.log.Info("tours already present, skipping seed", "count", count)
		return 0, nil
	}

	now := a.now().UTC()
	created := 0
	for _, tour := range sampleTours(now) {
		if _, err := a.tours.Create(ctx, tour); err != nil {
			return created, fmt.Errorf("seed %q: %w", tour.Title, err)
		}
		created++
	}
	return created, nil
}

func sampleDay(day int, title, description, accommodation string, meals ...string) ItineraryDay {
	entry := ItineraryDay{
		Day:           day,
		Title:         title,
		Description:   description,
		Accommodation: Accommodation{Name: accommodation, Images: []string{}},
		Meals:         make([]Meal, 0, len(meals)),
	}
	for _, meal := range meals {
		entry.Meals = append(entry.Meals, Meal{Name: meal, Images: []string{}})
	}
	return entry
}

func sampleTours(now time.Time) []Tour {
	standardInclusions := []string{"Hotel accommodation", "English speaking guide", "Transportation"}
	standardExclusions := []string{"International flights", "Travel insurance", "Personal expenses"}
	groupSize := func(n int) *int { return &n }

	tours := []Tour{
		{
			Title:        "Classic Beijing Tour",
			Description:  "Explore the Great Wall, Forbidden City, and more in this classic Beijing tour.",
			Destination:  "Beijing",
			WeatherCity:  "Beijing",
			Price:        Price{Amount: 1299, Currency: defaultCurrency},
			Duration:     TourDuration{Days: 5, Nights: 4},
			MaxGroupSize: groupSize(15),
			Images: TourImages{
				Main:    "/images/beijing.jpg",
				Gallery: []string{"/images/great-wall.jpg", "/images/forbidden-city.jpg"},
			},
			Itinerary: []ItineraryDay{
				sampleDay(1, "Arrival Day", "Welcome to Beijing! Transfer to hotel and rest.", "Beijing Hotel", "Dinner"),
				sampleDay(2, "Forbidden City", "Visit Tiananmen Square and Forbidden City.", "Beijing Hotel", "Breakfast", "Lunch"),
				sampleDay(3, "Great Wall", "Day trip to the Great Wall of China.", "Beijing Hotel", "Breakfast", "Lunch"),
				sampleDay(4, "Summer Palace", "Visit the Summer Palace and Temple of Heaven.", "Beijing Hotel", "Breakfast", "Lunch"),
				sampleDay(5, "Departure", "Free time for shopping before departure.", "", "Breakfast"),
			},
			Highlights: []string{"Great Wall of China", "Forbidden City", "Tiananmen Square", "Summer Palace"},
			Tags:       []string{"Beijing", "Great Wall", "Culture", "History"},
			Featured:   true,
		},
		{
			Title:        "Shanghai Highlights",
			Description:  "Experience the vibrant city of Shanghai with visits to the Bund, Yu Garden, and more.",
			Destination:  "Shanghai",
			WeatherCity:  "Shanghai",
			Price:        Price{Amount: 999, Currency: defaultCurrency},
			Duration:     TourDuration{Days: 4, Nights: 3},
			MaxGroupSize: groupSize(12),
			Images: TourImages{
				Main:    "/images/shanghai.jpg",
				Gallery: []string{"/images/bund.jpg", "/images/yu-garden.jpg"},
			},
			Itinerary: []ItineraryDay{
				sampleDay(1, "Arrival Day", "Welcome to Shanghai! Transfer to hotel and rest.", "Shanghai Hotel", "Dinner"),
				sampleDay(2, "The Bund", "Explore the Bund and Nanjing Road.", "Shanghai Hotel", "Breakfast", "Lunch"),
				sampleDay(3, "Yu Garden", "Visit Yu Garden and the Shanghai Tower.", "Shanghai Hotel", "Breakfast", "Lunch"),
				sampleDay(4, "Departure", "Free time for shopping before departure.", "", "Breakfast"),
			},
			Highlights: []string{"The Bund", "Yu Garden", "Shanghai Tower", "Nanjing Road"},
			Tags:       []string{"Shanghai", "City", "Modern", "Shopping"},
			Featured:   true,
		},
		{
			Title:        "Xian & Terracotta Warriors",
			Description:  "Discover ancient Xi'an and the famous Terracotta Army.",
			Destination:  "Xi'an",
			WeatherCity:  "Xi'an",
			Price:        Price{Amount: 1099, Currency: defaultCurrency},
			Duration:     TourDuration{Days: 3, Nights: 2},
			MaxGroupSize: groupSize(10),
			Images: TourImages{
				Main:    "/images/xian.jpg",
				Gallery: []string{"/images/terracotta.jpg", "/images/city-wall.jpg"},
			},
			Itinerary: []ItineraryDay{
				sampleDay(1, "Arrival Day", "Welcome to Xi'an! Walk along the ancient City Wall.", "Xi'an Hotel", "Dinner"),
				sampleDay(2, "Terracotta Army", "Full day visiting the Terracotta Warriors museum.", "Xi'an Hotel", "Breakfast", "Lunch"),
				sampleDay(3, "Departure", "Visit the Muslim Quarter before departure.", "", "Breakfast"),
			},
			Highlights: []string{"Terracotta Warriors", "Ancient City Wall", "Muslim Quarter", "Big Wild Goose Pagoda"},
			Tags:       []string{"Xian", "History", "Culture", "Ancient"},
			Featured:   false,
		},
	}

	for i := range tours {
		tours[i].Slug = slugify(tours[i].Title)
		tours[i].Inclusions = cloneStrings(standardInclusions)
		tours[i].Exclusions = cloneStrings(standardExclusions)
		tours[i].IsActive = boolPtr(true)
		tours[i].CreatedAt = now
		tours[i].UpdatedAt = now
	}
	return tours
}
