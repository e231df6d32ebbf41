package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Price struct {
	Amount   float64 `bson:"amount" json:"amount"`
	Currency string  `bson:"currency" json:"currency"`
}

type TourDuration struct {
	Days   int `bson:"days" json:"days"`
	Nights int `bson:"nights" json:"nights"`
}

type TourImages struct {
	Main    string   `bson:"main" json:"main"`
	Gallery []string `bson:"gallery" json:"gallery"`
}

// Accommodation was stored as a bare name in older documents; both decoders
// accept that form.
type Accommodation struct {
	Name   string   `bson:"name" json:"name"`
	Images []string `bson:"images" json:"images"`
}

type Meal struct {
	Name   string   `bson:"name" json:"name"`
	Images []string `bson:"images" json:"images"`
}

type ItineraryDay struct {
	Day           int           `bson:"day" json:"day"`
	Title         string        `bson:"title" json:"title"`
	Description   string        `bson:"description" json:"description"`
	Accommodation Accommodation `bson:"accommodation" json:"accommodation"`
	Meals         []Meal        `bson:"meals" json:"meals"`
	Image         string        `bson:"image,omitempty" json:"image,omitempty"`
}

type Tour struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Title           string             `bson:"title" json:"title"`
	Subtitle        string             `bson:"subtitle,omitempty" json:"subtitle,omitempty"`
	Slug            string             `bson:"slug,omitempty" json:"slug,omitempty"`
	Description     string             `bson:"description" json:"description"`
	LongDescription string             `bson:"longDescription,omitempty" json:"longDescription,omitempty"`
	Destination     string             `bson:"destination" json:"destination"`
	WeatherCity     string             `bson:"weatherCity,omitempty" json:"weatherCity,omitempty"`
	Price           Price              `bson:"price" json:"price"`
	Duration        TourDuration       `bson:"duration" json:"duration"`
	MaxGroupSize    *int               `bson:"maxGroupSize,omitempty" json:"maxGroupSize,omitempty"`
	Images          TourImages         `bson:"images" json:"images"`
	Itinerary       []ItineraryDay     `bson:"itinerary" json:"itinerary"`
	Highlights      []string           `bson:"highlights" json:"highlights"`
	Inclusions      []string           `bson:"inclusions" json:"inclusions"`
	Exclusions      []string           `bson:"exclusions" json:"exclusions"`
	Tags            []string           `bson:"tags" json:"tags"`
	Featured        bool               `bson:"featured" json:"featured"`
	IsActive        *bool              `bson:"isActive,omitempty" json:"isActive,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Active treats a missing isActive flag as active.
func (t *Tour) Active() bool {
	return t.IsActive == nil || *t.IsActive
}

// TourSummary is the catalog card shape returned by list endpoints.
type TourSummary struct {
	ID          primitive.ObjectID `json:"_id"`
	Title       string             `json:"title"`
	Slug        string             `json:"slug"`
	Description string             `json:"description"`
	Image       string             `json:"image"`
	Duration    string             `json:"duration"`
	Price       float64            `json:"price"`
	Currency    string             `json:"currency"`
	Destination string             `json:"destination"`
	Tags        []string           `json:"tags"`
	Featured    bool               `json:"featured"`
}

func toTourSummary(t Tour) TourSummary {
	slug := t.Slug
	if slug == "" {
		slug = slugify(t.Title)
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return TourSummary{
		ID:          t.ID,
		Title:       t.Title,
		Slug:        slug,
		Description: t.Description,
		Image:       t.Images.Main,
		Duration:    formatDurationDays(t.Duration.Days),
		Price:       t.Price.Amount,
		Currency:    t.Price.Currency,
		Destination: t.Destination,
		Tags:        tags,
		Featured:    t.Featured,
	}
}

func formatDurationDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

type accommodationFields Accommodation

func (a *Accommodation) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*a = Accommodation{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		*a = Accommodation{Name: name}
		return nil
	}
	var fields accommodationFields
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	*a = Accommodation(fields)
	return nil
}

func (a *Accommodation) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*a = Accommodation{}
		return nil
	case bsontype.String:
		name, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
		if !ok {
			return fmt.Errorf("accommodation: invalid string value")
		}
		*a = Accommodation{Name: name}
		return nil
	case bsontype.EmbeddedDocument:
		var fields accommodationFields
		if err := bson.Unmarshal(data, &fields); err != nil {
			return err
		}
		*a = Accommodation(fields)
		return nil
	default:
		return fmt.Errorf("accommodation: unsupported bson type %s", t)
	}
}

type mealFields Meal

func (m *Meal) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		*m = Meal{Name: name}
		return nil
	}
	var fields mealFields
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	*m = Meal(fields)
	return nil
}

func (m *Meal) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.String:
		name, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
		if !ok {
			return fmt.Errorf("meal: invalid string value")
		}
		*m = Meal{Name: name}
		return nil
	case bsontype.EmbeddedDocument:
		var fields mealFields
		if err := bson.Unmarshal(data, &fields); err != nil {
			return err
		}
		*m = Meal(fields)
		return nil
	case bsontype.Null, bsontype.Undefined:
		*m = Meal{}
		return nil
	default:
		return fmt.Errorf("meal: unsupported bson type %s", t)
	}
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func boolPtr(value bool) *bool {
	return &value
}
