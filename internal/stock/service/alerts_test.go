package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
)

func TestStockSeverity(t *testing.T) {
	tests := []struct {
		name      string
		available int
		threshold int
		want      string
	}{
		{"just below threshold", 10, 10, repository.SeverityFaible},
		{"above half", 6, 10, repository.SeverityFaible},
		{"at half", 5, 10, repository.SeverityMoyen},
		{"below half", 2, 10, repository.SeverityMoyen},
		{"one unit left", 1, 10, repository.SeverityMoyen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stockSeverity(tt.available, tt.threshold))
		})
	}
}

func TestExpirySeverity(t *testing.T) {
	tests := []struct {
		name     string
		daysLeft int
		want     string
	}{
		{"expires today", 0, repository.SeverityCritique},
		{"one week", 7, repository.SeverityCritique},
		{"eight days", 8, repository.SeverityMoyen},
		{"two weeks", 15, repository.SeverityMoyen},
		{"sixteen days", 16, repository.SeverityFaible},
		{"a month", 30, repository.SeverityFaible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expirySeverity(tt.daysLeft))
		})
	}
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 0, daysUntil(time.Now()))
	assert.Equal(t, 1, daysUntil(time.Now().AddDate(0, 0, 1)))
	assert.Equal(t, 30, daysUntil(time.Now().AddDate(0, 0, 30)))
	assert.Equal(t, -1, daysUntil(time.Now().AddDate(0, 0, -1)))
}
