package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestItineraryDecodesLegacyJSON(t *testing.T) {
	raw := `[
		{"day":1,"title":"Arrival","accommodation":"Beijing Hotel","meals":["Breakfast",{"name":"Peking Duck","images":["duck.jpg"]}]},
		{"day":2,"title":"Wall","accommodation":{"name":"Lodge","images":["l.jpg"]},"meals":[]},
		{"day":3,"title":"Depart","accommodation":null}
	]`

	var days []ItineraryDay
	require.NoError(t, json.Unmarshal([]byte(raw), &days))

	require.Len(t, days, 3)
	assert.Equal(t, Accommodation{Name: "Beijing Hotel"}, days[0].Accommodation)
	assert.Equal(t, []Meal{{Name: "Breakfast"}, {Name: "Peking Duck", Images: []string{"duck.jpg"}}}, days[0].Meals)
	assert.Equal(t, Accommodation{Name: "Lodge", Images: []string{"l.jpg"}}, days[1].Accommodation)
	assert.Equal(t, Accommodation{}, days[2].Accommodation)
}

func TestItineraryDecodesLegacyBSON(t *testing.T) {
	raw, err := bson.Marshal(bson.M{
		"title": "Legacy",
		"itinerary": bson.A{
			bson.M{"day": 1, "title": "Arrival", "accommodation": "Old Inn", "meals": bson.A{"Dinner"}},
			bson.M{"day": 2, "title": "Stay", "accommodation": bson.M{"name": "New Inn", "images": bson.A{"n.jpg"}}, "meals": bson.A{bson.M{"name": "Lunch"}}},
		},
	})
	require.NoError(t, err)

	var tour Tour
	require.NoError(t, bson.Unmarshal(raw, &tour))

	require.Len(t, tour.Itinerary, 2)
	assert.Equal(t, "Old Inn", tour.Itinerary[0].Accommodation.Name)
	assert.Equal(t, "Dinner", tour.Itinerary[0].Meals[0].Name)
	assert.Equal(t, []string{"n.jpg"}, tour.Itinerary[1].Accommodation.Images)
	assert.Equal(t, "Lunch", tour.Itinerary[1].Meals[0].Name)
	assert.True(t, tour.Active(), "a missing isActive flag means active")
}

func TestToTourSummary(t *testing.T) {
	summary := toTourSummary(Tour{
		Title:       "Lhasa Monasteries",
		Destination: "Lhasa",
		Price:       Price{Amount: 2100, Currency: "USD"},
		Duration:    TourDuration{Days: 7},
		Images:      TourImages{Main: "potala.jpg"},
	})

	assert.Equal(t, "lhasa-monasteries", summary.Slug)
	assert.Equal(t, "7 days", summary.Duration)
	assert.Equal(t, "potala.jpg", summary.Image)
	assert.Equal(t, []string{}, summary.Tags)
}

func TestTourFormInputNewTourDefaults(t *testing.T) {
	form := parseTestForm(t, map[string][]string{
		"title":          {"Lijiang Old Town"},
		"description":    {"Naxi culture"},
		"destination":    {"Lijiang"},
		"price":          {"750"},
		"durationDays":   {"4"},
		"durationNights": {"3"},
		"featured":       {"on"},
		"included":       {"Hotel", " ", "Guide"},
	}, nil)

	input, err := parseTourForm(form)
	require.NoError(t, err)
	require.NoError(t, input.validateForCreate())

	tour := input.newTour(testNow)
	assert.Equal(t, "lijiang-old-town", tour.Slug)
	assert.Equal(t, Price{Amount: 750, Currency: defaultCurrency}, tour.Price)
	assert.Equal(t, TourDuration{Days: 4, Nights: 3}, tour.Duration)
	assert.True(t, tour.Featured)
	assert.True(t, tour.Active())
	assert.Equal(t, []string{"Hotel", "Guide"}, tour.Inclusions)
	assert.Equal(t, []string{}, tour.Exclusions)
}

func TestParseTourFormRejectsBadNumbers(t *testing.T) {
	for field, value := range map[string]string{"price": "-5", "durationDays": "three", "featured": "perhaps"} {
		t.Run(field, func(t *testing.T) {
			_, err := parseTourForm(parseTestForm(t, map[string][]string{field: {value}}, nil))
			var apiErr *apiError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, 400, apiErr.Status)
		})
	}
}
