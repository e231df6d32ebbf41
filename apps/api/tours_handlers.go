package main

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
)

const maxRelatedToursLimit = 12

var errTourNotFound = &apiError{Status: http.StatusNotFound, Message: "Tour not found"}

func (a *App) listToursHandler(c *gin.Context) {
	filter := TourFilter{
		Query:    c.Query("query"),
		Page:     parsePage(c.Query("page")),
		PageSize: parsePageSize(c.Query("pageSize")),
	}
	if filter.Query == "" {
		filter.Query = c.Query("q")
	}
	if raw := strings.TrimSpace(c.Query("featured")); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid featured flag"})
			return
		}
		filter.Featured = &featured
	}
	if _, err := getAgent(c); err == nil {
		filter.IncludeInactive = c.Query("includeInactive") == "true"
	}

	result, err := a.tours.List(c.Request.Context(), filter)
	if err != nil {
		a.log.Error("list tours failed", "err", err)
		writeAPIError(c, err)
		return
	}
	summaries := make([]TourSummary, 0, len(result.Tours))
	for _, tour := range result.Tours {
		summaries = append(summaries, toTourSummary(tour))
	}
	c.JSON(http.StatusOK, gin.H{
		"tours":       summaries,
		"totalCount":  result.TotalCount,
		"totalPages":  result.TotalPages,
		"currentPage": result.CurrentPage,
		"pageSize":    result.PageSize,
	})
}

func (a *App) getTourHandler(c *gin.Context) {
	tour, err := a.tours.Get(c.Request.Context(), c.Param("id"))
	a.writeTour(c, tour, err)
}

func (a *App) tourBySlugHandler(c *gin.Context) {
	tour, err := a.tours.GetBySlug(c.Request.Context(), c.Param("slug"))
	a.writeTour(c, tour, err)
}

// writeTour hides inactive tours from anonymous visitors.
func (a *App) writeTour(c *gin.Context, tour *Tour, err error) {
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if tour == nil {
		writeAPIError(c, errTourNotFound)
		return
	}
	if _, agentErr := getAgent(c); agentErr != nil && !tour.Active() {
		writeAPIError(c, errTourNotFound)
		return
	}
	c.JSON(http.StatusOK, tour)
}

func (a *App) relatedToursHandler(c *gin.Context) {
	var tags []string
	for _, tag := range strings.Split(c.Query("tags"), ",") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	if len(tags) == 0 {
		c.JSON(http.StatusOK, []TourSummary{})
		return
	}
	limit := defaultRelatedToursLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid limit"})
			return
		}
		limit = min(parsed, maxRelatedToursLimit)
	}

	tours, err := a.tours.Related(c.Request.Context(), tags, c.Query("excludeId"), limit)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	summaries := make([]TourSummary, 0, len(tours))
	for _, tour := range tours {
		summaries = append(summaries, toTourSummary(tour))
	}
	c.JSON(http.StatusOK, summaries)
}

func (a *App) tourDestinationsHandler(c *gin.Context) {
	destinations, err := a.tours.Destinations(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, destinations)
}

// readTourMultipart enforces the request ceiling, parses the form and
// validates every addressed image before anything is written.
func (a *App) readTourMultipart(c *gin.Context) (*multipart.Form, tourFormInput, []mediaSlot, MediaRemovals, error) {
	var input tourFormInput
	var removals MediaRemovals

	if c.Request.ContentLength > maxRequestBytes {
		return nil, input, nil, removals, &apiError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: "Request too large",
			Details: "Total upload size must not exceed 50MB",
		}
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return nil, input, nil, removals, &apiError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: "Request too large",
				Details: "Total upload size must not exceed 50MB",
			}
		}
		return nil, input, nil, removals, &apiError{Status: http.StatusBadRequest, Message: "Invalid multipart form", Details: err.Error()}
	}

	if input, err = parseTourForm(form); err != nil {
		return form, input, nil, removals, err
	}
	slots, err := parseMediaSlots(form)
	if err != nil {
		return form, input, nil, removals, err
	}
	if err := validateMediaSlots(slots); err != nil {
		return form, input, nil, removals, err
	}
	if removals, err = parseMediaRemovals(form); err != nil {
		return form, input, nil, removals, err
	}
	return form, input, slots, removals, nil
}

func (a *App) createTourHandler(c *gin.Context) {
	form, input, slots, _, err := a.readTourMultipart(c)
	if form != nil {
		defer form.RemoveAll()
	}
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if err := input.validateForCreate(); err != nil {
		writeAPIError(c, err)
		return
	}

	ctx := c.Request.Context()
	now := a.now().UTC()
	tour := input.newTour(now)
	var submittedItinerary []ItineraryDay
	if input.Itinerary != nil {
		submittedItinerary = *input.Itinerary
		tour.Itinerary = reconcileItinerary(submittedItinerary, nil, MediaUploads{})
	}
	if err := checkSlotsAddressItinerary(slots, submittedItinerary); err != nil {
		writeAPIError(c, err)
		return
	}

	created, err := a.tours.Create(ctx, tour)
	if err != nil {
		a.log.Error("create tour failed", "err", err)
		writeAPIError(c, err)
		return
	}
	a.metrics.tourWrite("create")

	if len(slots) == 0 {
		c.JSON(http.StatusCreated, created)
		return
	}

	tourID := created.ID.Hex()
	urls, err := a.uploadMediaSlots(ctx, tourID, slots)
	if err != nil {
		a.log.Error("tour image upload failed", "tour", tourID, "err", err)
		writeAPIError(c, &apiError{Status: http.StatusInternalServerError, Message: "Image upload failed", Details: err.Error()})
		return
	}
	uploads := buildMediaUploads(slots, urls)
	updated, err := a.tours.SetFields(ctx, tourID, bson.M{
		"images":    reconcileImages(created.Images, MediaRemovals{}, uploads),
		"itinerary": reconcileItinerary(created.Itinerary, nil, uploads),
		"updatedAt": a.now().UTC(),
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if updated == nil {
		writeAPIError(c, errTourNotFound)
		return
	}
	c.JSON(http.StatusCreated, updated)
}

func (a *App) updateTourHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := parseObjectID(id); err != nil {
		writeAPIError(c, err)
		return
	}

	form, input, slots, removals, err := a.readTourMultipart(c)
	if form != nil {
		defer form.RemoveAll()
	}
	if err != nil {
		writeAPIError(c, err)
		return
	}

	ctx := c.Request.Context()
	existing, err := a.tours.Get(ctx, id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if existing == nil {
		writeAPIError(c, errTourNotFound)
		return
	}

	submitted := existing.Itinerary
	if input.Itinerary != nil {
		submitted = *input.Itinerary
	}
	if err := checkSlotsAddressItinerary(slots, submitted); err != nil {
		writeAPIError(c, err)
		return
	}

	uploads := MediaUploads{}
	if len(slots) > 0 {
		urls, err := a.uploadMediaSlots(ctx, id, slots)
		if err != nil {
			a.log.Error("tour image upload failed", "tour", id, "err", err)
			writeAPIError(c, &apiError{Status: http.StatusInternalServerError, Message: "Image upload failed", Details: err.Error()})
			return
		}
		uploads = buildMediaUploads(slots, urls)
	}

	fields := input.scalarFields()
	fields["images"] = reconcileImages(existing.Images, removals, uploads)
	fields["itinerary"] = reconcileItinerary(submitted, existing.Itinerary, uploads)
	fields["updatedAt"] = a.now().UTC()

	updated, err := a.tours.SetFields(ctx, id, fields)
	if err != nil {
		a.log.Error("update tour failed", "tour", id, "err", err)
		writeAPIError(c, err)
		return
	}
	if updated == nil {
		writeAPIError(c, errTourNotFound)
		return
	}
	a.metrics.tourWrite("update")
	c.JSON(http.StatusOK, updated)
}

type tourPatch struct {
	Title           *string         `json:"title"`
	Subtitle        *string         `json:"subtitle"`
	Description     *string         `json:"description"`
	LongDescription *string         `json:"longDescription"`
	Destination     *string         `json:"destination"`
	WeatherCity     *string         `json:"weatherCity"`
	Price           *Price          `json:"price"`
	Duration        *TourDuration   `json:"duration"`
	MaxGroupSize    *int            `json:"maxGroupSize"`
	Featured        *bool           `json:"featured"`
	IsActive        *bool           `json:"isActive"`
	Highlights      *[]string       `json:"highlights"`
	Inclusions      *[]string       `json:"inclusions"`
	Exclusions      *[]string       `json:"exclusions"`
	Tags            *[]string       `json:"tags"`
	Itinerary       *[]ItineraryDay `json:"itinerary"`
}

func (p tourPatch) fields(existing *Tour) bson.M {
	input := tourFormInput{
		Title:           p.Title,
		Subtitle:        p.Subtitle,
		Description:     p.Description,
		LongDescription: p.LongDescription,
		Destination:     p.Destination,
		WeatherCity:     p.WeatherCity,
		MaxGroupSize:    p.MaxGroupSize,
		Featured:        p.Featured,
		IsActive:        p.IsActive,
		Highlights:      p.Highlights,
		Inclusions:      p.Inclusions,
		Exclusions:      p.Exclusions,
		Tags:            p.Tags,
	}
	if p.Price != nil {
		input.Price = &p.Price.Amount
		if p.Price.Currency != "" {
			input.Currency = &p.Price.Currency
		}
	}
	if p.Duration != nil {
		input.DurationDays = &p.Duration.Days
		input.DurationNights = &p.Duration.Nights
	}
	fields := input.scalarFields()
	if p.Itinerary != nil {
		fields["itinerary"] = reconcileItinerary(*p.Itinerary, existing.Itinerary, MediaUploads{})
	}
	return fields
}

func (a *App) patchTourHandler(c *gin.Context) {
	var patch tourPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid tour payload", Details: err.Error()})
		return
	}
	if patch.Price != nil && patch.Price.Amount < 0 {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid price"})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	existing, err := a.tours.Get(ctx, id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if existing == nil {
		writeAPIError(c, errTourNotFound)
		return
	}

	fields := patch.fields(existing)
	fields["updatedAt"] = a.now().UTC()
	updated, err := a.tours.SetFields(ctx, id, fields)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if updated == nil {
		writeAPIError(c, errTourNotFound)
		return
	}
	a.metrics.tourWrite("patch")
	c.JSON(http.StatusOK, updated)
}

func (a *App) deleteTourHandler(c *gin.Context) {
	deleted, err := a.tours.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if !deleted {
		writeAPIError(c, errTourNotFound)
		return
	}
	a.metrics.tourWrite("delete")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
