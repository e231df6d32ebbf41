package main

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const defaultCurrency = "USD"

// tourFormInput is the text part of a multipart tour submission. Nil fields
// were not sent and are left untouched on update.
type tourFormInput struct {
	Title           *string
	Subtitle        *string
	Description     *string
	LongDescription *string
	Destination     *string
	WeatherCity     *string
	DurationDays    *int
	DurationNights  *int
	Price           *float64
	Currency        *string
	MaxGroupSize    *int
	Featured        *bool
	IsActive        *bool
	Highlights      *[]string
	Inclusions      *[]string
	Exclusions      *[]string
	Tags            *[]string
	Itinerary       *[]ItineraryDay
}

func parseTourForm(form *multipart.Form) (tourFormInput, error) {
	var input tourFormInput
	if form == nil {
		return input, nil
	}

	input.Title = formString(form, "title")
	input.Subtitle = formString(form, "subtitle")
	input.Description = formString(form, "description")
	input.LongDescription = formString(form, "longDescription")
	input.Destination = formString(form, "destination")
	input.WeatherCity = formString(form, "weatherCity")
	input.Currency = formString(form, "currency")

	var err error
	if input.DurationDays, err = formInt(form, "durationDays"); err != nil {
		return input, err
	}
	if input.DurationNights, err = formInt(form, "durationNights"); err != nil {
		return input, err
	}
	if input.MaxGroupSize, err = formInt(form, "maxGroupSize"); err != nil {
		return input, err
	}
	if raw := formString(form, "price"); raw != nil && *raw != "" {
		price, err := strconv.ParseFloat(*raw, 64)
		if err != nil || price < 0 {
			return input, &apiError{Status: http.StatusBadRequest, Message: "Invalid price"}
		}
		input.Price = &price
	}
	if input.Featured, err = formBool(form, "featured"); err != nil {
		return input, err
	}
	if input.IsActive, err = formBool(form, "isActive"); err != nil {
		return input, err
	}

	input.Highlights = formList(form, "highlights")
	input.Inclusions = formList(form, "included")
	input.Exclusions = formList(form, "notIncluded")
	input.Tags = formList(form, "tags")

	if raw := formValue(form, "itinerary"); raw != "" {
		var itinerary []ItineraryDay
		if err := json.Unmarshal([]byte(raw), &itinerary); err != nil {
			return input, &apiError{Status: http.StatusBadRequest, Message: "Invalid itinerary", Details: err.Error()}
		}
		for i := range itinerary {
			if itinerary[i].Day == 0 {
				itinerary[i].Day = i + 1
			}
		}
		input.Itinerary = &itinerary
	}
	return input, nil
}

func (in tourFormInput) validateForCreate() error {
	var missing []string
	if in.Title == nil || *in.Title == "" {
		missing = append(missing, "title")
	}
	if in.Description == nil || *in.Description == "" {
		missing = append(missing, "description")
	}
	if in.Destination == nil || *in.Destination == "" {
		missing = append(missing, "destination")
	}
	if in.Price == nil {
		missing = append(missing, "price")
	}
	if in.DurationDays == nil {
		missing = append(missing, "durationDays")
	}
	if len(missing) > 0 {
		return &apiError{Status: http.StatusBadRequest, Message: "Missing required fields", Details: strings.Join(missing, ", ")}
	}
	return nil
}

func (in tourFormInput) newTour(now time.Time) Tour {
	tour := Tour{
		Price:      Price{Currency: defaultCurrency},
		Images:     TourImages{Gallery: []string{}},
		Itinerary:  []ItineraryDay{},
		Highlights: []string{},
		Inclusions: []string{},
		Exclusions: []string{},
		Tags:       []string{},
		IsActive:   boolPtr(true),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for key, value := range in.scalarFields() {
		applyTourField(&tour, key, value)
	}
	tour.Slug = slugify(tour.Title)
	return tour
}

// scalarFields returns the $set document for every submitted non-image
// field. The itinerary is excluded because it needs image reconciliation.
func (in tourFormInput) scalarFields() bson.M {
	fields := bson.M{}
	setString := func(key string, value *string) {
		if value != nil {
			fields[key] = *value
		}
	}
	setString("title", in.Title)
	setString("subtitle", in.Subtitle)
	setString("description", in.Description)
	setString("longDescription", in.LongDescription)
	setString("destination", in.Destination)
	setString("weatherCity", in.WeatherCity)
	if in.Title != nil {
		fields["slug"] = slugify(*in.Title)
	}
	if in.Price != nil {
		fields["price.amount"] = *in.Price
	}
	if in.Currency != nil && *in.Currency != "" {
		fields["price.currency"] = strings.ToUpper(*in.Currency)
	}
	if in.DurationDays != nil {
		fields["duration.days"] = *in.DurationDays
	}
	if in.DurationNights != nil {
		fields["duration.nights"] = *in.DurationNights
	}
	if in.MaxGroupSize != nil {
		fields["maxGroupSize"] = *in.MaxGroupSize
	}
	if in.Featured != nil {
		fields["featured"] = *in.Featured
	}
	if in.IsActive != nil {
		fields["isActive"] = *in.IsActive
	}
	if in.Highlights != nil {
		fields["highlights"] = *in.Highlights
	}
	if in.Inclusions != nil {
		fields["inclusions"] = *in.Inclusions
	}
	if in.Exclusions != nil {
		fields["exclusions"] = *in.Exclusions
	}
	if in.Tags != nil {
		fields["tags"] = *in.Tags
	}
	return fields
}

func applyTourField(tour *Tour, key string, value any) {
	switch key {
	case "title":
		tour.Title = value.(string)
	case "subtitle":
		tour.Subtitle = value.(string)
	case "description":
		tour.Description = value.(string)
	case "longDescription":
		tour.LongDescription = value.(string)
	case "destination":
		tour.Destination = value.(string)
	case "weatherCity":
		tour.WeatherCity = value.(string)
	case "price.amount":
		tour.Price.Amount = value.(float64)
	case "price.currency":
		tour.Price.Currency = value.(string)
	case "duration.days":
		tour.Duration.Days = value.(int)
	case "duration.nights":
		tour.Duration.Nights = value.(int)
	case "maxGroupSize":
		size := value.(int)
		tour.MaxGroupSize = &size
	case "featured":
		tour.Featured = value.(bool)
	case "isActive":
		tour.IsActive = boolPtr(value.(bool))
	case "highlights":
		tour.Highlights = value.([]string)
	case "inclusions":
		tour.Inclusions = value.([]string)
	case "exclusions":
		tour.Exclusions = value.([]string)
	case "tags":
		tour.Tags = value.([]string)
	}
}

func formString(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	value := strings.TrimSpace(values[0])
	return &value
}

func formInt(form *multipart.Form, key string) (*int, error) {
	raw := formString(form, key)
	if raw == nil || *raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(*raw)
	if err != nil || value < 0 {
		return nil, &apiError{Status: http.StatusBadRequest, Message: "Invalid " + key}
	}
	return &value, nil
}

func formBool(form *multipart.Form, key string) (*bool, error) {
	raw := formString(form, key)
	if raw == nil || *raw == "" {
		return nil, nil
	}
	switch strings.ToLower(*raw) {
	case "on":
		return boolPtr(true), nil
	case "off":
		return boolPtr(false), nil
	}
	value, err := strconv.ParseBool(*raw)
	if err != nil {
		return nil, &apiError{Status: http.StatusBadRequest, Message: "Invalid " + key}
	}
	return &value, nil
}

// formList reads a repeated field. A single value holding a JSON array and a
// comma separated tags value are also accepted.
func formList(form *multipart.Form, key string) *[]string {
	values, ok := form.Value[key]
	if !ok {
		return nil
	}
	if len(values) == 1 {
		single := strings.TrimSpace(values[0])
		if strings.HasPrefix(single, "[") {
			var decoded []string
			if err := json.Unmarshal([]byte(single), &decoded); err == nil {
				values = decoded
			}
		} else if key == "tags" && strings.Contains(single, ",") {
			values = strings.Split(single, ",")
		}
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return &out
}
