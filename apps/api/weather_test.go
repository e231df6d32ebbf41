package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

// syntheticSeries builds one sample per day for the given years.
func syntheticSeries(years []int, sample func(day time.Time) (*float64, *float64)) *DailySeries {
	series := &DailySeries{}
	for _, year := range years {
		for day := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); day.Year() == year; day = day.AddDate(0, 0, 1) {
			temp, rain := sample(day)
			series.Time = append(series.Time, day.Format("2006-01-02"))
			series.Temperature = append(series.Temperature, temp)
			series.Precipitation = append(series.Precipitation, rain)
		}
	}
	return series
}

func TestAggregateClimateAveragesRainfallAcrossYears(t *testing.T) {
	series := syntheticSeries([]int{2022, 2023}, func(day time.Time) (*float64, *float64) {
		if day.Year() == 2022 {
			return floatPtr(10), floatPtr(1)
		}
		return floatPtr(20), floatPtr(2)
	})

	temperatures, rainfall, err := aggregateClimate(series)
	require.NoError(t, err)

	// January: 31mm in 2022 and 62mm in 2023 average to 46.5.
	assert.Equal(t, 47, rainfall[0])
	// February: 28mm and 56mm.
	assert.Equal(t, 42, rainfall[1])
	for month := 0; month < 12; month++ {
		assert.Equal(t, 15, temperatures[month], "month %d", month+1)
	}
}

func TestAggregateClimateSkipsMissingSamples(t *testing.T) {
	series := syntheticSeries([]int{2023}, func(day time.Time) (*float64, *float64) {
		switch day.Month() {
		case time.March:
			return nil, nil
		case time.April:
			if day.Day()%2 == 0 {
				return nil, floatPtr(3)
			}
			return floatPtr(-2.5), nil
		}
		return floatPtr(5), floatPtr(0)
	})

	temperatures, rainfall, err := aggregateClimate(series)
	require.NoError(t, err)

	assert.Equal(t, 0, temperatures[2])
	assert.Equal(t, 0, rainfall[2])
	assert.Equal(t, -2, temperatures[3])
	// 15 even days in April at 3mm.
	assert.Equal(t, 45, rainfall[3])
	assert.Equal(t, 5, temperatures[0])
}

func TestAggregateClimateRejectsInvalidSeries(t *testing.T) {
	_, _, err := aggregateClimate(nil)
	assert.ErrorIs(t, err, errClimateUnavailable)

	_, _, err = aggregateClimate(&DailySeries{Time: []string{"2023-01-01"}, Temperature: []*float64{nil}})
	assert.ErrorIs(t, err, errClimateUnavailable)

	_, _, err = aggregateClimate(&DailySeries{
		Time:          []string{"01/01/2023"},
		Temperature:   []*float64{floatPtr(1)},
		Precipitation: []*float64{floatPtr(1)},
	})
	assert.ErrorIs(t, err, errClimateUnavailable)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 3, roundHalfUp(2.5))
	assert.Equal(t, -2, roundHalfUp(-2.5))
	assert.Equal(t, 2, roundHalfUp(2.49))
	assert.Equal(t, 0, roundHalfUp(0))
}

func TestExtractPrimaryCity(t *testing.T) {
	tests := []struct {
		destination string
		want        string
	}{
		{"Beijing - Xi'an - Shanghai", "Beijing"},
		{"Xian & Terracotta Warriors", "Xian"},
		{"Ancient Xi'an", "Xi'an"},
		{"  hong kong island ", "Hong Kong"},
		{"Paris Explorer", "Paris"},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.destination, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPrimaryCity(tt.destination))
		})
	}
}

func newTestClimateService(geocoder Geocoder, archive ClimateArchive) *ClimateService {
	service := newClimateService(geocoder, archive, slog.New(slog.NewTextHandler(io.Discard, nil)))
	service.now = func() time.Time { return testNow }
	return service
}

func TestClimateServiceReportFromArchive(t *testing.T) {
	archive := &stubArchive{series: syntheticSeries([]int{2024}, func(time.Time) (*float64, *float64) {
		return floatPtr(12), floatPtr(0)
	})}
	geocoder := &stubGeocoder{}
	service := newTestClimateService(geocoder, archive)

	report, err := service.Report(context.Background(), "Xian & Terracotta Warriors")

	require.NoError(t, err)
	assert.Equal(t, "Xi'an", report.Name)
	assert.Equal(t, climateSourceArchive, report.Source)
	assert.Len(t, report.Temperatures, 12)
	assert.Equal(t, 12, report.Temperatures[6])
	assert.Equal(t, 0, geocoder.calls, "table cities skip the geocoder")
	assert.Equal(t, 1, archive.calls)
}

func TestClimateServiceFallsBackToStaticData(t *testing.T) {
	service := newTestClimateService(&stubGeocoder{}, &stubArchive{err: errors.New("timeout")})

	report, err := service.Report(context.Background(), "beijing")

	require.NoError(t, err)
	assert.Equal(t, "Beijing", report.Name)
	assert.Equal(t, climateSourceFallback, report.Source)
	assert.Equal(t, -4, report.Temperatures[0])
	assert.Equal(t, 120, report.Rainfall[6])
}

func TestClimateServiceErrors(t *testing.T) {
	t.Run("unknown city is 404", func(t *testing.T) {
		service := newTestClimateService(&stubGeocoder{}, &stubArchive{})
		_, err := service.Report(context.Background(), "Atlantis")
		var apiErr *apiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, "City not found", apiErr.Message)
	})

	t.Run("geocoder failure is 404", func(t *testing.T) {
		service := newTestClimateService(&stubGeocoder{err: errors.New("down")}, &stubArchive{})
		_, err := service.Report(context.Background(), "Atlantis")
		var apiErr *apiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
	})

	t.Run("no fallback is 500", func(t *testing.T) {
		geocoder := &stubGeocoder{result: &GeocodeResult{Name: "Lyon", Latitude: 45.76, Longitude: 4.83, Country: "France"}}
		service := newTestClimateService(geocoder, &stubArchive{err: errors.New("boom")})
		_, err := service.Report(context.Background(), "Lyon")
		var apiErr *apiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, "Weather data unavailable", apiErr.Message)
	})
}

func TestClimateServiceBreakerOpensAfterRepeatedFailures(t *testing.T) {
	archive := &stubArchive{err: errors.New("unavailable")}
	service := newTestClimateService(&stubGeocoder{}, archive)

	for i := 0; i < 5; i++ {
		report, err := service.Report(context.Background(), "Shanghai")
		require.NoError(t, err)
		assert.Equal(t, climateSourceFallback, report.Source)
	}

	assert.Equal(t, 3, archive.calls)
}

func TestOpenMeteoArchiveDaily(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "39.9042", q.Get("latitude"))
		assert.Equal(t, "2020-01-01", q.Get("start_date"))
		assert.Equal(t, "2024-12-31", q.Get("end_date"))
		assert.Equal(t, "temperature_2m_mean,precipitation_sum", q.Get("daily"))
		assert.Equal(t, "auto", q.Get("timezone"))
		_, _ = io.WriteString(w, `{"daily":{"time":["2020-01-01","2020-01-02"],"temperature_2m_mean":[-3.5,null],"precipitation_sum":[0.2,1.0]}}`)
	}))
	defer server.Close()

	archive := &OpenMeteoArchive{BaseURL: server.URL, Client: server.Client()}
	series, err := archive.Daily(context.Background(), 39.9042, 116.4074, 2020, 2024)

	require.NoError(t, err)
	require.Len(t, series.Time, 2)
	require.NotNil(t, series.Temperature[0])
	assert.Equal(t, -3.5, *series.Temperature[0])
	assert.Nil(t, series.Temperature[1])
}

func TestOpenMeteoArchiveRejectsErrorsAndEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("latitude") == "1.0000" {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"daily":{"time":[]}}`)
	}))
	defer server.Close()

	archive := &OpenMeteoArchive{BaseURL: server.URL, Client: server.Client()}

	_, err := archive.Daily(context.Background(), 1, 1, 2020, 2024)
	assert.ErrorContains(t, err, "status=429")

	_, err = archive.Daily(context.Background(), 2, 2, 2020, 2024)
	assert.ErrorContains(t, err, "invalid weather data structure")
}

func TestWeatherHandler(t *testing.T) {
	_, router, deps := newTestServer(t)
	deps.archive.series = syntheticSeries([]int{2024}, func(time.Time) (*float64, *float64) {
		return floatPtr(25), floatPtr(1)
	})

	t.Run("missing city", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "City parameter is required")
	})

	t.Run("known city", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather?city=Shanghai%20Highlights", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body ClimateReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Shanghai", body.Name)
		assert.Equal(t, climateSourceArchive, body.Source)
		assert.Equal(t, 31, body.Rainfall[0])
		assert.Equal(t, 25, body.Temperatures[11])
	})

	t.Run("unknown city", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather?city=Atlantis", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGeocodersAgainstTestServers(t *testing.T) {
	openMeteo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "Kunming" {
			_, _ = io.WriteString(w, `{"results":[{"name":"Kunming","latitude":25.04,"longitude":102.71,"country":"China","admin1":"Yunnan"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}))
	defer openMeteo.Close()

	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `[{"display_name":"Dali, Yunnan, China","lat":"25.6","lon":"100.26","address":{"country":"China","state":"Yunnan"}}]`)
	}))
	defer nominatim.Close()

	geocoder := &FallbackGeocoder{
		Primary:   &OpenMeteoGeocoder{BaseURL: openMeteo.URL, Client: openMeteo.Client()},
		Secondary: &NominatimGeocoder{BaseURL: nominatim.URL, UserAgent: "test-agent", Client: nominatim.Client()},
	}

	result, err := geocoder.Geocode(context.Background(), "Kunming")
	require.NoError(t, err)
	assert.Equal(t, "Kunming", result.Name)
	assert.Equal(t, "Yunnan", result.Admin1)

	result, err = geocoder.Geocode(context.Background(), "Dali")
	require.NoError(t, err)
	assert.Equal(t, "Dali", result.Name)
	assert.InDelta(t, 25.6, result.Latitude, 0.0001)
	assert.Equal(t, "China", result.Country)
}
