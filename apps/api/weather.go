package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultOpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"
	climateYears               = 5
	climateSourceArchive       = "archive"
	climateSourceFallback      = "fallback"
)

var errClimateUnavailable = errors.New("climate data unavailable")

// DailySeries holds parallel daily samples. Nil entries are missing samples.
type DailySeries struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m_mean"`
	Precipitation []*float64 `json:"precipitation_sum"`
}

type ClimateArchive interface {
	Daily(ctx context.Context, lat, lon float64, startYear, endYear int) (*DailySeries, error)
}

// OpenMeteoArchive implements ClimateArchive using the Open-Meteo historical
// weather API.
type OpenMeteoArchive struct {
	BaseURL string
	Client  *http.Client
}

func (o *OpenMeteoArchive) Daily(ctx context.Context, lat, lon float64, startYear, endYear int) (*DailySeries, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("start_date", fmt.Sprintf("%d-01-01", startYear))
	q.Set("end_date", fmt.Sprintf("%d-12-31", endYear))
	q.Set("daily", "temperature_2m_mean,precipitation_sum")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Daily *DailySeries `json:"daily"`
	}
	if err := doJSON(o.Client, req, &data); err != nil {
		return nil, fmt.Errorf("open-meteo archive: %w", err)
	}
	if data.Daily == nil || len(data.Daily.Time) == 0 {
		return nil, errors.New("open-meteo archive: invalid weather data structure")
	}
	return data.Daily, nil
}

type ClimateReport struct {
	Name         string `json:"name"`
	Country      string `json:"country,omitempty"`
	Temperatures []int  `json:"temperatures"`
	Rainfall     []int  `json:"rainfall"`
	Source       string `json:"source"`
}

type ClimateService struct {
	geocoder Geocoder
	archive  ClimateArchive
	breaker  *gobreaker.CircuitBreaker[*DailySeries]
	log      *slog.Logger
	now      func() time.Time
}

func newClimateService(geocoder Geocoder, archive ClimateArchive, logger *slog.Logger) *ClimateService {
	settings := gobreaker.Settings{
		Name:        "climate-archive",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &ClimateService{
		geocoder: geocoder,
		archive:  archive,
		breaker:  gobreaker.NewCircuitBreaker[*DailySeries](settings),
		log:      logger,
		now:      time.Now,
	}
}

// resolveLocation uses the static city table before asking the geocoder.
func (s *ClimateService) resolveLocation(ctx context.Context, city string) (*GeocodeResult, error) {
	if entry, ok := lookupCityCoordinates(city); ok {
		return &GeocodeResult{Name: entry.Name, Latitude: entry.Latitude, Longitude: entry.Longitude, Country: entry.Country}, nil
	}
	return s.geocoder.Geocode(ctx, city)
}

// Report resolves the destination and returns its monthly climate normals.
func (s *ClimateService) Report(ctx context.Context, destination string) (*ClimateReport, error) {
	city := extractPrimaryCity(destination)
	if city == "" {
		return nil, &apiError{Status: http.StatusBadRequest, Message: "City parameter is required"}
	}

	location, err := s.resolveLocation(ctx, city)
	if err != nil {
		s.log.Warn("geocoding failed", "city", city, "err", err)
	}
	if location == nil {
		return nil, &apiError{
			Status:  http.StatusNotFound,
			Message: "City not found",
			Details: fmt.Sprintf("Could not find location data for: %s (from destination: %s)", city, destination),
		}
	}

	endYear := s.now().Year() - 1
	startYear := endYear - (climateYears - 1)
	series, err := s.breaker.Execute(func() (*DailySeries, error) {
		return s.archive.Daily(ctx, location.Latitude, location.Longitude, startYear, endYear)
	})
	if err == nil {
		temperatures, rainfall, aggErr := aggregateClimate(series)
		if aggErr == nil {
			return &ClimateReport{
				Name:         location.Name,
				Country:      location.Country,
				Temperatures: temperatures[:],
				Rainfall:     rainfall[:],
				Source:       climateSourceArchive,
			}, nil
		}
		err = aggErr
	}
	s.log.Warn("climate archive failed, trying fallback", "city", location.Name, "err", err)

	if normals, ok := lookupFallbackClimate(location.Name); ok {
		return &ClimateReport{
			Name:         normals.Name,
			Country:      location.Country,
			Temperatures: normals.Temperatures[:],
			Rainfall:     normals.Rainfall[:],
			Source:       climateSourceFallback,
		}, nil
	}
	return nil, &apiError{
		Status:  http.StatusInternalServerError,
		Message: "Weather data unavailable",
		Details: fmt.Sprintf("Could not fetch weather data for: %s", city),
	}
}

// aggregateClimate buckets daily samples by calendar month. Temperature is the
// mean of all samples in the month. Rainfall is the mean across years of each
// year's monthly total. Missing samples count toward neither.
func aggregateClimate(series *DailySeries) ([12]int, [12]int, error) {
	var temperatures, rainfall [12]int
	if series == nil || len(series.Time) == 0 {
		return temperatures, rainfall, errClimateUnavailable
	}
	if len(series.Temperature) != len(series.Time) || len(series.Precipitation) != len(series.Time) {
		return temperatures, rainfall, fmt.Errorf("%w: mismatched series lengths", errClimateUnavailable)
	}

	var tempSum [12]float64
	var tempCount [12]int
	monthlyTotals := [12]map[int]float64{}
	for i := range monthlyTotals {
		monthlyTotals[i] = map[int]float64{}
	}

	for i, raw := range series.Time {
		day, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
		if err != nil {
			return temperatures, rainfall, fmt.Errorf("%w: bad date %q", errClimateUnavailable, raw)
		}
		month := int(day.Month()) - 1
		if t := series.Temperature[i]; t != nil {
			tempSum[month] += *t
			tempCount[month]++
		}
		if p := series.Precipitation[i]; p != nil {
			monthlyTotals[month][day.Year()] += *p
		}
	}

	for month := 0; month < 12; month++ {
		if tempCount[month] > 0 {
			temperatures[month] = roundHalfUp(tempSum[month] / float64(tempCount[month]))
		}
		if years := len(monthlyTotals[month]); years > 0 {
			total := 0.0
			for _, value := range monthlyTotals[month] {
				total += value
			}
			rainfall[month] = roundHalfUp(total / float64(years))
		}
	}
	return temperatures, rainfall, nil
}

// roundHalfUp rounds .5 toward positive infinity, so -2.5 becomes -2.
func roundHalfUp(value float64) int {
	return int(math.Floor(value + 0.5))
}

func (a *App) weatherHandler(c *gin.Context) {
	destination := strings.TrimSpace(c.Query("city"))
	if destination == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "City parameter is required"})
		return
	}

	report, err := a.climate.Report(c.Request.Context(), destination)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	a.metrics.climateReport(report.Source)
	c.JSON(http.StatusOK, report)
}
