package main

import (
	"strconv"
	"strings"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

func parsePage(rawPage string) int {
	page, err := strconv.Atoi(strings.TrimSpace(rawPage))
	if err != nil || page < defaultPage {
		return defaultPage
	}
	return page
}

func parsePageSize(rawSize string) int {
	size, err := strconv.Atoi(strings.TrimSpace(rawSize))
	if err != nil || size < 1 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

func totalPages(totalCount, pageSize int) int {
	if totalCount <= 0 || pageSize < 1 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}
