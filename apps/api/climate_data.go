package main

import "strings"

type cityCoordinate struct {
	Key       string
	Name      string
	Latitude  float64
	Longitude float64
	Country   string
}

type climateNormals struct {
	Name         string
	Temperatures [12]int
	Rainfall     [12]int
}

// Order matters: extractPrimaryCity returns the first key contained in the
// destination.
var cityCoordinates = []cityCoordinate{
	{Key: "Beijing", Name: "Beijing", Latitude: 39.9042, Longitude: 116.4074, Country: "China"},
	{Key: "Shanghai", Name: "Shanghai", Latitude: 31.2304, Longitude: 121.4737, Country: "China"},
	{Key: "Xian", Name: "Xi'an", Latitude: 34.2658, Longitude: 108.9541, Country: "China"},
	{Key: "Xi'an", Name: "Xi'an", Latitude: 34.2658, Longitude: 108.9541, Country: "China"},
	{Key: "Guilin", Name: "Guilin", Latitude: 25.2736, Longitude: 110.2906, Country: "China"},
	{Key: "Chengdu", Name: "Chengdu", Latitude: 30.5728, Longitude: 104.0668, Country: "China"},
	{Key: "Hong Kong", Name: "Hong Kong", Latitude: 22.3193, Longitude: 114.1694, Country: "Hong Kong"},
	{Key: "Hangzhou", Name: "Hangzhou", Latitude: 30.2741, Longitude: 120.1551, Country: "China"},
	{Key: "Suzhou", Name: "Suzhou", Latitude: 31.2989, Longitude: 120.5853, Country: "China"},
	{Key: "Nanjing", Name: "Nanjing", Latitude: 32.0603, Longitude: 118.7969, Country: "China"},
	{Key: "Chongqing", Name: "Chongqing", Latitude: 29.4316, Longitude: 106.9123, Country: "China"},
	{Key: "Lijiang", Name: "Lijiang", Latitude: 26.8721, Longitude: 100.2287, Country: "China"},
	{Key: "Lhasa", Name: "Lhasa", Latitude: 29.6525, Longitude: 91.1721, Country: "China"},
}

var fallbackClimate = []climateNormals{
	{
		Name:         "Beijing",
		Temperatures: [12]int{-4, -1, 5, 12, 18, 23, 26, 25, 20, 14, 7, 0},
		Rainfall:     [12]int{3, 4, 8, 22, 30, 55, 120, 90, 40, 25, 7, 3},
	},
	{
		Name:         "Shanghai",
		Temperatures: [12]int{4, 6, 10, 16, 21, 25, 28, 28, 24, 19, 13, 7},
		Rainfall:     [12]int{60, 70, 90, 100, 110, 160, 150, 140, 120, 60, 50, 40},
	},
	{
		Name:         "Xi'an",
		Temperatures: [12]int{-1, 3, 9, 16, 21, 25, 27, 26, 21, 15, 8, 2},
		Rainfall:     [12]int{10, 12, 18, 30, 45, 60, 110, 95, 65, 40, 18, 7},
	},
	{
		Name:         "Guilin",
		Temperatures: [12]int{8, 9, 13, 18, 22, 26, 28, 28, 25, 21, 16, 11},
		Rainfall:     [12]int{60, 90, 130, 200, 280, 320, 240, 180, 90, 70, 60, 40},
	},
	{
		Name:         "Chengdu",
		Temperatures: [12]int{6, 8, 12, 17, 21, 24, 26, 26, 22, 17, 12, 7},
		Rainfall:     [12]int{10, 15, 25, 60, 90, 120, 220, 200, 120, 40, 20, 10},
	},
	{
		Name:         "Hong Kong",
		Temperatures: [12]int{16, 17, 19, 23, 26, 28, 29, 29, 28, 25, 22, 18},
		Rainfall:     [12]int{30, 50, 80, 170, 290, 390, 380, 430, 290, 120, 40, 30},
	},
	{
		Name:         "Hangzhou",
		Temperatures: [12]int{5, 6, 10, 16, 21, 25, 29, 28, 24, 19, 13, 7},
		Rainfall:     [12]int{70, 90, 120, 130, 140, 190, 170, 140, 140, 80, 70, 50},
	},
	{
		Name:         "Suzhou",
		Temperatures: [12]int{4, 5, 9, 15, 20, 24, 28, 28, 24, 18, 12, 6},
		Rainfall:     [12]int{60, 70, 90, 100, 110, 170, 150, 140, 120, 60, 50, 40},
	},
}

func lookupCityCoordinates(city string) (cityCoordinate, bool) {
	for _, entry := range cityCoordinates {
		if strings.EqualFold(entry.Key, city) {
			return entry, true
		}
	}
	return cityCoordinate{}, false
}

func lookupFallbackClimate(name string) (climateNormals, bool) {
	for _, entry := range fallbackClimate {
		if strings.EqualFold(entry.Name, name) {
			return entry, true
		}
	}
	return climateNormals{}, false
}

// extractPrimaryCity picks the first known city mentioned in a destination
// such as "Beijing - Xi'an - Shanghai", else its first word.
func extractPrimaryCity(destination string) string {
	normalized := strings.TrimSpace(destination)
	lower := strings.ToLower(normalized)
	for _, entry := range cityCoordinates {
		if strings.Contains(lower, strings.ToLower(entry.Key)) {
			return entry.Key
		}
	}
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
