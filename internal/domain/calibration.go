package domain

// CalibrationEstimate is the output contract of the calibration curve
// (spec §4.1): estimate(price) -> {point_estimate, lower_bound, band_label}.
type CalibrationEstimate struct {
	PointEstimate float64
	LowerBound    float64
	BandLabel     string
}

// HasEdge reports whether the lower-bound estimate is above zero. Outside
// the fitted calibration domain both point estimate and lower bound are
// pinned to zero (spec §4.1), so such a price never has an edge.
func (e CalibrationEstimate) HasEdge() bool {
	return e.LowerBound > 0
}

// SizingResult is the diagnostic + decision output of the position sizer
// (spec §4.2).
type SizingResult struct {
	SizeUSD         float64
	Shares          float64
	EVPerDollar     float64
	KellyFraction   float64
	ConfidenceMult  float64
	Rejected        bool
	RejectReason    string
}

// Zero reports a sizing result that placed no order.
func (r SizingResult) Zero() bool {
	return r.Rejected || r.SizeUSD <= 0
}

// DCASizeDecision is the target-holding DCA sizer's output (spec §4.2).
type DCASizeDecision struct {
	OrderUSD      float64
	Reason        DCACompletionReason // set only when the group is complete
	Complete      bool
}
