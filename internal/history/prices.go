package history

import "math"

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// priceSeries holds one resolved price per enumerated day
type priceSeries map[string][]float64

// resolvePrices fills each asset's daily series from explicit prices, forward then backward,
// then the latest spot, then 0. Assets with a proxy base and no explicit prices track the base
// at the constant ratio of the two latest spots.
func resolvePrices(days []string, assetKeys []string, explicit map[string]map[string]float64, spot map[string]float64, proxies map[string]string) priceSeries {
	resolved := make(priceSeries, len(assetKeys))
	hasExplicit := make(map[string]bool, len(assetKeys))

	for _, asset := range assetKeys {
		series := make([]float64, len(days))
		known := make([]bool, len(days))
		for i, day := range days {
			if p, ok := explicit[asset][day]; ok {
				series[i], known[i] = p, true
				hasExplicit[asset] = true
			}
		}

		for i := 1; i < len(series); i++ {
			if !known[i] && known[i-1] {
				series[i], known[i] = series[i-1], true
			}
		}
		for i := len(series) - 2; i >= 0; i-- {
			if !known[i] && known[i+1] {
				series[i], known[i] = series[i+1], true
			}
		}

		for i := range series {
			if known[i] {
				continue
			}
			if p, ok := spot[asset]; ok {
				series[i] = p
			}
		}
		resolved[asset] = series
	}

	for _, asset := range assetKeys {
		base, ok := proxies[asset]
		if !ok || hasExplicit[asset] {
			continue
		}
		assetSpot, okAsset := spot[asset]
		baseSpot, okBase := spot[base]
		if !okAsset || !okBase || baseSpot <= 0 {
			continue
		}
		ratio := assetSpot / baseSpot
		if !finite(ratio) {
			continue
		}
		baseSeries, ok := resolved[base]
		if !ok {
			continue
		}
		for i, p := range baseSeries {
			if finite(p) && p >= 0 {
				resolved[asset][i] = p * ratio
			}
		}
	}

	return resolved
}
