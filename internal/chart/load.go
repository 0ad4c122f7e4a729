package chart

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/talgya/compsim/internal/boundary"
	"github.com/talgya/compsim/internal/curve"
)

// Map file types.
const (
	TypeFanLaw = "fanlaw"
	TypeLookup = "lookup"
	TypeMW     = "mw"
)

// File is the JSON layout of a map file.
type File struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	HeadUnit     string        `json:"head_unit,omitempty"`
	Conditions   []float64     `json:"conditions,omitempty"`
	GearRatio    float64       `json:"gear_ratio,omitempty"`
	UseRealKappa bool          `json:"use_real_kappa,omitempty"`
	Reference    *Reference    `json:"reference,omitempty"`
	Curves       []curve.Curve `json:"curves,omitempty"`
	Surge        *Samples      `json:"surge,omitempty"`
	StoneWall    *Samples      `json:"stonewall,omitempty"`

	Maps               []MWFile `json:"maps,omitempty"`
	OperatingMW        float64  `json:"operating_mw,omitempty"`
	UseActualMW        bool     `json:"use_actual_mw,omitempty"` // follow the attached gas
	AllowExtrapolation bool     `json:"allow_extrapolation,omitempty"`
}

// MWFile is one member map of an MW composite.
type MWFile struct {
	MolecularWeight float64       `json:"molecular_weight"`
	Conditions      []float64     `json:"conditions,omitempty"`
	Curves          []curve.Curve `json:"curves"`
	Surge           *Samples      `json:"surge,omitempty"`
	StoneWall       *Samples      `json:"stonewall,omitempty"`
}

// Samples are explicit boundary points. Missing boundaries are generated
// from the curves.
type Samples struct {
	Flow []float64 `json:"flow"`
	Head []float64 `json:"head"`
}

// LoadFile reads and builds a map from a JSON file.
func LoadFile(path string) (Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map file: %w", err)
	}
	defer f.Close()

	m, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load map %s: %w", path, err)
	}
	return m, nil
}

// Load decodes a map file from r and builds it.
func Load(r io.Reader) (Map, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return f.Build()
}

// Build constructs the map described by the file.
func (f File) Build() (Map, error) {
	var m Map
	switch f.Type {
	case TypeFanLaw, "":
		fl := NewFanLaw()
		if err := fillMap(fl, f.Conditions, f.Curves, f.Surge, f.StoneWall); err != nil {
			return nil, err
		}
		m = fl
	case TypeLookup:
		lk := NewLookup()
		if f.GearRatio != 0 {
			if err := lk.SetGearRatio(f.GearRatio); err != nil {
				return nil, err
			}
		}
		if err := fillMap(lk, f.Conditions, f.Curves, f.Surge, f.StoneWall); err != nil {
			return nil, err
		}
		m = lk
	case TypeMW:
		mw, err := f.buildMW()
		if err != nil {
			return nil, err
		}
		m = mw
	default:
		return nil, curve.NewConfigError("chart.Build", "type", "unknown map type %q", f.Type)
	}

	if f.HeadUnit != "" {
		if err := m.SetHeadUnit(f.HeadUnit); err != nil {
			return nil, err
		}
	}
	m.SetUseRealKappa(f.UseRealKappa)
	if f.Reference != nil {
		m.SetReferenceConditions(*f.Reference)
	}
	return m, nil
}

func (f File) buildMW() (*MWInterpolated, error) {
	if len(f.Maps) == 0 {
		return nil, curve.NewConfigError("chart.Build", "maps", "an mw map needs at least one member map")
	}
	mw := NewMWInterpolated()
	mw.SetAllowExtrapolation(f.AllowExtrapolation)
	mw.SetUseActualMW(f.UseActualMW)
	for _, mf := range f.Maps {
		speeds, flow, head, effFlow, eff := columns(mf.Curves)
		if err := mw.AddMapAtMW(mf.MolecularWeight, mf.Conditions, speeds, flow, head, effFlow, eff); err != nil {
			return nil, fmt.Errorf("map at MW %g: %w", mf.MolecularWeight, err)
		}
		if mf.Surge != nil {
			if err := mw.SetSurgeCurveAtMW(mf.MolecularWeight, mf.Surge.Flow, mf.Surge.Head); err != nil {
				return nil, err
			}
		}
		if mf.StoneWall != nil {
			if err := mw.SetStoneWallCurveAtMW(mf.MolecularWeight, mf.StoneWall.Flow, mf.StoneWall.Head); err != nil {
				return nil, err
			}
		}
	}
	if f.OperatingMW > 0 {
		mw.SetOperatingMW(f.OperatingMW)
	}
	return mw, nil
}

func fillMap(m Map, conditions []float64, curves []curve.Curve, surge, stonewall *Samples) error {
	speeds, flow, head, effFlow, eff := columns(curves)
	if err := m.SetCurvesWithEffFlow(conditions, speeds, flow, head, effFlow, eff); err != nil {
		return err
	}

	if surge != nil {
		c, err := boundary.NewSurge(surge.Flow, surge.Head)
		if err != nil {
			return err
		}
		m.SetSurgeCurve(c)
	} else if err := m.GenerateSurgeCurve(); err != nil {
		return err
	}

	if stonewall != nil {
		c, err := boundary.NewStoneWall(stonewall.Flow, stonewall.Head)
		if err != nil {
			return err
		}
		m.SetStoneWallCurve(c)
	} else if err := m.GenerateStoneWallCurve(); err != nil {
		return err
	}
	return nil
}

// columns splits curves into the per-speed arrays taken by the setters.
// effFlow is nil unless some curve samples efficiency at its own flows.
func columns(curves []curve.Curve) (speeds []float64, flow, head, effFlow, eff [][]float64) {
	separate := false
	for _, c := range curves {
		if len(c.EffFlow) > 0 {
			separate = true
		}
	}
	for _, c := range curves {
		speeds = append(speeds, c.Speed)
		flow = append(flow, c.Flow)
		head = append(head, c.Head)
		eff = append(eff, c.Efficiency)
		if separate {
			effFlow = append(effFlow, c.EfficiencyFlow())
		}
	}
	return speeds, flow, head, effFlow, eff
}
