package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
)

func buildTourBrochure(tour *Tour) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; convert from UTF-8 before writing.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(tour.Title), "", "L", false)
	if tour.Subtitle != "" {
		pdf.SetFont("Helvetica", "", 12)
		pdf.MultiCell(0, 7, tr(tour.Subtitle), "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, tr("Destination: "+tour.Destination))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Duration: %s / %d nights", formatDurationDays(tour.Duration.Days), tour.Duration.Nights))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Price from: %s %.2f", tour.Price.Currency, tour.Price.Amount))
	pdf.Ln(6)
	if tour.MaxGroupSize != nil {
		pdf.Cell(0, 7, fmt.Sprintf("Max group size: %d", *tour.MaxGroupSize))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	description := tour.LongDescription
	if strings.TrimSpace(description) == "" {
		description = tour.Description
	}
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(description), "", "L", false)

	writeList := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, heading)
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, item := range items {
			pdf.MultiCell(0, 5, tr("- "+item), "", "L", false)
		}
	}
	writeList("Highlights", tour.Highlights)

	if len(tour.Itinerary) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Itinerary")
		pdf.Ln(8)
		for _, day := range tour.Itinerary {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.MultiCell(0, 6, tr(fmt.Sprintf("Day %d: %s", day.Day, day.Title)), "", "L", false)
			pdf.SetFont("Helvetica", "", 10)
			if day.Description != "" {
				pdf.MultiCell(0, 5, tr(day.Description), "", "L", false)
			}
			if day.Accommodation.Name != "" {
				pdf.MultiCell(0, 5, tr("Accommodation: "+day.Accommodation.Name), "", "L", false)
			}
			if len(day.Meals) > 0 {
				names := make([]string, 0, len(day.Meals))
				for _, meal := range day.Meals {
					if meal.Name != "" {
						names = append(names, meal.Name)
					}
				}
				if len(names) > 0 {
					pdf.MultiCell(0, 5, tr("Meals: "+strings.Join(names, ", ")), "", "L", false)
				}
			}
			pdf.Ln(2)
		}
	}

	writeList("Included", tour.Inclusions)
	writeList("Not included", tour.Exclusions)

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (a *App) tourBrochureHandler(c *gin.Context) {
	tour, err := a.tours.Get(c.Request.Context(), c.Param("id"))
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

	content, err := buildTourBrochure(tour)
	if err != nil {
		a.log.Error("build tour brochure failed", "id", tour.ID.Hex(), "err", err)
		writeAPIError(c, err)
		return
	}

	name := tour.Slug
	if name == "" {
		name = tour.ID.Hex()
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.pdf"`, name))
	c.Data(http.StatusOK, "application/pdf", content)
}
