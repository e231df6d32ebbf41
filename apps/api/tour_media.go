package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

type mediaSlotKind string

const (
	slotMain          mediaSlotKind = "main"
	slotGallery       mediaSlotKind = "gallery"
	slotDay           mediaSlotKind = "day"
	slotAccommodation mediaSlotKind = "accommodation"
	slotMeal          mediaSlotKind = "meal"
)

// mediaSlot is one uploaded file and the entity position it addresses.
type mediaSlot struct {
	Kind     mediaSlotKind
	Day      int
	Meal     int
	Position int
	File     *multipart.FileHeader
	MimeType string
	Ext      string
}

func (s mediaSlot) name() string {
	switch s.Kind {
	case slotGallery:
		return fmt.Sprintf("gallery-%d", s.Position)
	case slotDay:
		return fmt.Sprintf("day-%d", s.Day)
	case slotAccommodation:
		return fmt.Sprintf("accommodation-%d-%d", s.Day, s.Position)
	case slotMeal:
		return fmt.Sprintf("meal-%d-%d-%d", s.Day, s.Meal, s.Position)
	default:
		return string(s.Kind)
	}
}

// MediaUploads holds the stored-object URLs of newly uploaded files keyed by
// the entity position they were submitted for.
type MediaUploads struct {
	Main          string
	Gallery       []string
	Days          map[int]string
	Accommodation map[int]map[int]string
	Meals         map[int]map[int]map[int]string
}

func (u MediaUploads) empty() bool {
	return u.Main == "" && len(u.Gallery) == 0 && len(u.Days) == 0 && len(u.Accommodation) == 0 && len(u.Meals) == 0
}

type MediaRemovals struct {
	RemoveMain     bool
	GalleryIndices []int
	// GallerySnapshot is the gallery the client rendered when it chose the
	// indices. Nil when the client did not send one.
	GallerySnapshot []string
}

// reconcileImages applies removals to the stored main/gallery images and then
// appends new uploads. Gallery indices resolve against the snapshot when one
// is given, so replaying the same removal is a no-op.
func reconcileImages(stored TourImages, removals MediaRemovals, uploads MediaUploads) TourImages {
	result := TourImages{Main: stored.Main, Gallery: cloneStrings(stored.Gallery)}
	if result.Gallery == nil {
		result.Gallery = []string{}
	}

	if len(removals.GalleryIndices) > 0 {
		if removals.GallerySnapshot != nil {
			pending := map[string]int{}
			for _, index := range removals.GalleryIndices {
				if index >= 0 && index < len(removals.GallerySnapshot) {
					pending[removals.GallerySnapshot[index]]++
				}
			}
			kept := make([]string, 0, len(result.Gallery))
			for _, url := range result.Gallery {
				if pending[url] > 0 {
					pending[url]--
					continue
				}
				kept = append(kept, url)
			}
			result.Gallery = kept
		} else {
			drop := map[int]struct{}{}
			for _, index := range removals.GalleryIndices {
				drop[index] = struct{}{}
			}
			kept := make([]string, 0, len(result.Gallery))
			for i, url := range result.Gallery {
				if _, ok := drop[i]; !ok {
					kept = append(kept, url)
				}
			}
			result.Gallery = kept
		}
	}

	if removals.RemoveMain {
		result.Main = ""
	}
	if uploads.Main != "" {
		result.Main = uploads.Main
	}
	result.Gallery = append(result.Gallery, uploads.Gallery...)
	return result
}

// reconcileItinerary merges the submitted itinerary with the stored one. Text
// fields come from the submission. Image slots take a new upload when one was
// sent for that position and otherwise keep the stored value.
func reconcileItinerary(submitted, stored []ItineraryDay, uploads MediaUploads) []ItineraryDay {
	result := make([]ItineraryDay, len(submitted))
	for d, day := range submitted {
		var prior *ItineraryDay
		if d < len(stored) {
			prior = &stored[d]
		}

		merged := day
		switch {
		case uploads.Days[d] != "":
			merged.Image = uploads.Days[d]
		case prior != nil && prior.Image != "":
			merged.Image = prior.Image
		}

		accommodationBase := day.Accommodation.Images
		if prior != nil && len(prior.Accommodation.Images) > 0 {
			accommodationBase = prior.Accommodation.Images
		}
		merged.Accommodation = Accommodation{
			Name:   day.Accommodation.Name,
			Images: applyPositionalUploads(accommodationBase, uploads.Accommodation[d]),
		}

		merged.Meals = make([]Meal, len(day.Meals))
		for m, meal := range day.Meals {
			base := meal.Images
			if prior != nil && m < len(prior.Meals) && len(prior.Meals[m].Images) > 0 {
				base = prior.Meals[m].Images
			}
			merged.Meals[m] = Meal{
				Name:   meal.Name,
				Images: applyPositionalUploads(base, uploads.Meals[d][m]),
			}
		}

		result[d] = merged
	}
	return result
}

// applyPositionalUploads replaces base[p] for each upload at an existing
// position and appends the rest in position order.
func applyPositionalUploads(base []string, uploads map[int]string) []string {
	out := cloneStrings(base)
	if out == nil {
		out = []string{}
	}
	positions := make([]int, 0, len(uploads))
	for position := range uploads {
		positions = append(positions, position)
	}
	sort.Ints(positions)
	for _, position := range positions {
		if position >= 0 && position < len(out) {
			out[position] = uploads[position]
			continue
		}
		out = append(out, uploads[position])
	}
	return out
}

// parseMediaSlots collects the addressed image files of a tour form. Field
// names: mainImage, galleryImages, itineraryImage_{d},
// accommodationImage_{d}_{p} and mealImage_{d}_{m}_{p}.
func parseMediaSlots(form *multipart.Form) ([]mediaSlot, error) {
	if form == nil {
		return nil, nil
	}
	names := make([]string, 0, len(form.File))
	for name := range form.File {
		names = append(names, name)
	}
	sort.Strings(names)

	var slots []mediaSlot
	for _, name := range names {
		files := nonEmptyFiles(form.File[name])
		if len(files) == 0 {
			continue
		}
		switch {
		case name == "mainImage":
			slots = append(slots, mediaSlot{Kind: slotMain, File: files[0]})
		case name == "galleryImages":
			for i, file := range files {
				slots = append(slots, mediaSlot{Kind: slotGallery, Position: i, File: file})
			}
		case strings.HasPrefix(name, "itineraryImage_"):
			parts, err := parseSlotIndices(name, "itineraryImage_", 1)
			if err != nil {
				return nil, err
			}
			slots = append(slots, mediaSlot{Kind: slotDay, Day: parts[0], File: files[0]})
		case strings.HasPrefix(name, "accommodationImage_"):
			parts, err := parseSlotIndices(name, "accommodationImage_", 2)
			if err != nil {
				return nil, err
			}
			slots = append(slots, mediaSlot{Kind: slotAccommodation, Day: parts[0], Position: parts[1], File: files[0]})
		case strings.HasPrefix(name, "mealImage_"):
			parts, err := parseSlotIndices(name, "mealImage_", 3)
			if err != nil {
				return nil, err
			}
			slots = append(slots, mediaSlot{Kind: slotMeal, Day: parts[0], Meal: parts[1], Position: parts[2], File: files[0]})
		}
	}
	return slots, nil
}

func nonEmptyFiles(files []*multipart.FileHeader) []*multipart.FileHeader {
	out := make([]*multipart.FileHeader, 0, len(files))
	for _, file := range files {
		if file != nil && file.Size > 0 {
			out = append(out, file)
		}
	}
	return out
}

func parseSlotIndices(name, prefix string, count int) ([]int, error) {
	raw := strings.Split(strings.TrimPrefix(name, prefix), "_")
	if len(raw) != count {
		return nil, &apiError{Status: http.StatusBadRequest, Message: "Invalid image field", Details: name}
	}
	values := make([]int, count)
	for i, part := range raw {
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 {
			return nil, &apiError{Status: http.StatusBadRequest, Message: "Invalid image field", Details: name}
		}
		values[i] = value
	}
	return values, nil
}

// validateMediaSlots enforces the per-file ceiling and sniffs each file's
// content type. It runs before anything is written.
func validateMediaSlots(slots []mediaSlot) error {
	for i := range slots {
		slot := &slots[i]
		if slot.File.Size > maxUploadBytes {
			return &apiError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: "Image too large",
				Details: fmt.Sprintf("%s exceeds the %dMB limit", slot.File.Filename, maxUploadBytes/(1024*1024)),
			}
		}
		file, err := slot.File.Open()
		if err != nil {
			return err
		}
		detected, err := mimetype.DetectReader(file)
		file.Close()
		if err != nil {
			return err
		}
		mimeType := detected.String()
		if idx := strings.Index(mimeType, ";"); idx >= 0 {
			mimeType = mimeType[:idx]
		}
		if _, ok := allowedImageTypes[mimeType]; !ok {
			return &apiError{
				Status:  http.StatusBadRequest,
				Message: "Unsupported image type",
				Details: fmt.Sprintf("%s: %s", slot.File.Filename, mimeType),
			}
		}
		slot.MimeType = mimeType
		slot.Ext = detected.Extension()
	}
	return nil
}

// checkSlotsAddressItinerary rejects itinerary images whose day or meal is
// not part of the itinerary they would be merged into.
func checkSlotsAddressItinerary(slots []mediaSlot, itinerary []ItineraryDay) error {
	for _, slot := range slots {
		switch slot.Kind {
		case slotDay, slotAccommodation, slotMeal:
		default:
			continue
		}
		if slot.Day < 0 || slot.Day >= len(itinerary) {
			return &apiError{
				Status:  http.StatusBadRequest,
				Message: "Image addresses an unknown itinerary day",
				Details: fmt.Sprintf("%s: day %d of %d", slot.File.Filename, slot.Day, len(itinerary)),
			}
		}
		if slot.Kind == slotMeal && (slot.Meal < 0 || slot.Meal >= len(itinerary[slot.Day].Meals)) {
			return &apiError{
				Status:  http.StatusBadRequest,
				Message: "Image addresses an unknown meal",
				Details: fmt.Sprintf("%s: meal %d of day %d", slot.File.Filename, slot.Meal, slot.Day),
			}
		}
	}
	return nil
}

func parseMediaRemovals(form *multipart.Form) (MediaRemovals, error) {
	removals := MediaRemovals{}
	if form == nil {
		return removals, nil
	}
	removals.RemoveMain = strings.EqualFold(formValue(form, "removeMainImage"), "true")

	if raw := formValue(form, "removedGalleryImages"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &removals.GalleryIndices); err != nil {
			return removals, &apiError{Status: http.StatusBadRequest, Message: "Invalid removedGalleryImages", Details: err.Error()}
		}
	}
	if raw := formValue(form, "existingGallery"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &removals.GallerySnapshot); err != nil {
			return removals, &apiError{Status: http.StatusBadRequest, Message: "Invalid existingGallery", Details: err.Error()}
		}
		if removals.GallerySnapshot == nil {
			removals.GallerySnapshot = []string{}
		}
	}
	return removals, nil
}

// uploadMediaSlots stores every slot with bounded concurrency. URLs are
// returned in slot order.
func (a *App) uploadMediaSlots(ctx context.Context, tourID string, slots []mediaSlot) ([]string, error) {
	urls := make([]string, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for i, slot := range slots {
		i, slot := i, slot
		g.Go(func() error {
			key, err := tourObjectKey(tourID, slot.name(), slot.Ext)
			if err != nil {
				return err
			}
			file, err := slot.File.Open()
			if err != nil {
				return err
			}
			defer file.Close()
			url, err := a.objects.Put(gctx, key, slot.MimeType, file, slot.File.Size)
			if err != nil {
				return err
			}
			urls[i] = url
			a.metrics.imageUploaded(string(slot.Kind))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func buildMediaUploads(slots []mediaSlot, urls []string) MediaUploads {
	uploads := MediaUploads{
		Days:          map[int]string{},
		Accommodation: map[int]map[int]string{},
		Meals:         map[int]map[int]map[int]string{},
	}
	for i, slot := range slots {
		url := urls[i]
		switch slot.Kind {
		case slotMain:
			uploads.Main = url
		case slotGallery:
			uploads.Gallery = append(uploads.Gallery, url)
		case slotDay:
			uploads.Days[slot.Day] = url
		case slotAccommodation:
			if uploads.Accommodation[slot.Day] == nil {
				uploads.Accommodation[slot.Day] = map[int]string{}
			}
			uploads.Accommodation[slot.Day][slot.Position] = url
		case slotMeal:
			if uploads.Meals[slot.Day] == nil {
				uploads.Meals[slot.Day] = map[int]map[int]string{}
			}
			if uploads.Meals[slot.Day][slot.Meal] == nil {
				uploads.Meals[slot.Day][slot.Meal] = map[int]string{}
			}
			uploads.Meals[slot.Day][slot.Meal][slot.Position] = url
		}
	}
	return uploads
}

func formValue(form *multipart.Form, key string) string {
	if form == nil || len(form.Value[key]) == 0 {
		return ""
	}
	return strings.TrimSpace(form.Value[key][0])
}
