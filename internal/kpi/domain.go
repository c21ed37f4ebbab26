package kpi

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus enumerates the lifecycle of a computation run.
type RunStatus string

const (
	// RunPending indicates the run is queued, waiting for a worker.
	RunPending RunStatus = "PENDING"
	// RunRunning indicates a worker is executing the run.
	RunRunning RunStatus = "RUNNING"
	// RunSucceeded indicates results were persisted for the window.
	RunSucceeded RunStatus = "SUCCEEDED"
	// RunFailed indicates the run aborted; prior results stay in place.
	RunFailed RunStatus = "FAILED"
)

// Params configures one computation over an inclusive date window.
type Params struct {
	StartDate             time.Time
	EndDate               time.Time
	ServiceLevel          float64
	LeadTimeDays          int
	ExcessThresholdDays   float64
	ShortageThresholdDays float64
	XYZLowCV              float64
	XYZHighCV             float64
}

// DefaultParams returns the operational defaults for a window.
func DefaultParams(start, end time.Time) Params {
	return Params{
		StartDate:             start,
		EndDate:               end,
		ServiceLevel:          0.95,
		LeadTimeDays:          7,
		ExcessThresholdDays:   45,
		ShortageThresholdDays: 7,
		XYZLowCV:              0.5,
		XYZHighCV:             1.0,
	}
}

// Validate rejects parameter sets before any computation begins.
func (p Params) Validate() error {
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return errors.New("kpi: start and end dates required")
	}
	if p.EndDate.Before(p.StartDate) {
		return errors.New("kpi: end date before start date")
	}
	if p.LeadTimeDays <= 0 {
		return errors.New("kpi: lead time days must be positive")
	}
	if p.ServiceLevel <= 0 || p.ServiceLevel >= 1 {
		return errors.New("kpi: service level must be between 0 and 1 exclusive")
	}
	if p.XYZLowCV <= 0 || p.XYZHighCV <= p.XYZLowCV {
		return errors.New("kpi: xyz thresholds must satisfy 0 < low < high")
	}
	return nil
}

// PeriodDays returns the inclusive number of calendar days in the window.
func (p Params) PeriodDays() int {
	return int(p.EndDate.Sub(p.StartDate).Hours()/24) + 1
}

// Fingerprint derives the stable identity of the window. Concurrent
// submissions for one window share a fingerprint and are serialized on it.
func (p Params) Fingerprint() uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("kpi-run:%s:%s",
		p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"))))
}

// Run records one computation request and its outcome.
type Run struct {
	ID           int64
	Fingerprint  uuid.UUID
	Params       Params
	Status       RunStatus
	Error        string
	ProductCount int
	RequestedBy  string
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// MovementPoint is the aggregated movement of one product on one day.
type MovementPoint struct {
	Day    time.Time
	QtyIn  float64
	QtyOut float64
}

// StockPoint is the clamped running stock level after one movement day.
type StockPoint struct {
	Day   time.Time
	Level float64
}

// CostSample pairs a purchased quantity with its unit price.
type CostSample struct {
	Qty       float64
	UnitPrice float64
}

// ProductMetrics is the computed record for one product in one window.
type ProductMetrics struct {
	ProductKey string
	Cabys      string
	StartDate  time.Time
	EndDate    time.Time

	TotalIn  float64
	TotalOut float64

	AvgStock   float64
	FinalStock float64

	AvgCost        float64
	AvgPrice       float64
	COGS           float64
	InventoryValue float64

	Rotation float64
	DIO      float64

	AvgDailyDemand         float64
	StdDailyDemand         float64
	CoefficientOfVariation float64

	SafetyStock  float64
	ReorderPoint float64
	CoverageDays float64

	ABCClass string
	XYZClass string

	IsExcess   bool
	IsShortage bool
}

// SalesValue is the product's contribution to window revenue at cost,
// the ABC ranking measure.
func (m ProductMetrics) SalesValue() float64 {
	return m.TotalOut * m.AvgCost
}

var (
	// ErrRunNotFound occurs when a run id does not exist.
	ErrRunNotFound = errors.New("kpi: run not found")
	// ErrRunActive occurs when the window already has a queued or
	// running computation.
	ErrRunActive = errors.New("kpi: run already active for window")
)
