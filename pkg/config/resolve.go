package config

// Resolved is the flattened view of a profile after applying the
// peak_finding_params overrides. Inner values win field by field for the
// peak-finding stage; the outer values keep governing every other stage.
type Resolved struct {
	// Peak-finding stage thresholds
	PeakThresCo float64
	PeakThresCx float64

	// Thresholds for all other stages (cross-channel gating of LDR)
	ThresCo float64
	ThresCx float64

	// Detection smoothing for the finest scale
	Smooth SmoothMode
	Kernel []float64
	Span   float64
	Order  int
}

// Resolve applies the override precedence rules to a profile's settings
func Resolve(s ProcessingSettings) Resolved {
	r := Resolved{
		PeakThresCo: s.ThresFactorCo,
		PeakThresCx: s.ThresFactorCx,
		ThresCo:     s.ThresFactorCo,
		ThresCx:     s.ThresFactorCx,
		Smooth:      s.Smooth,
	}

	pf := s.PeakFinding
	if pf == nil {
		return r
	}

	if pf.ThresFactorCo != nil {
		r.PeakThresCo = *pf.ThresFactorCo
	}
	if pf.ThresFactorCx != nil {
		r.PeakThresCx = *pf.ThresFactorCx
	}

	switch {
	case len(pf.Kernel) > 0:
		r.Kernel = append([]float64(nil), pf.Kernel...)
	case pf.VelSmooth != nil && !*pf.VelSmooth:
		r.Smooth = SmoothNone
	case pf.VelSmooth != nil && *pf.VelSmooth && r.Smooth == SmoothNone:
		r.Smooth = SmoothStandard
	}

	if pf.Span > 0 {
		r.Span = pf.Span
		r.Order = pf.SmoothPolyorder
	}
	return r
}
