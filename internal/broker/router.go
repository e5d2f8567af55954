package broker

import (
	"fmt"

	"github.com/songzhibin97/stockflux/internal/models"
)

type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// Router manages broker instances by region and routes orders to the right
// one. Symbol format conversion is each broker's own business.
type Router struct {
	usBrokers    map[string]Broker
	indiaBrokers map[string]Broker

	usPreferred    string
	indiaPreferred string
	indiaFallback  string

	logger Logger
}

func NewRouter(logger Logger) *Router {
	return &Router{
		usBrokers:    make(map[string]Broker),
		indiaBrokers: make(map[string]Broker),
		logger:       logger,
	}
}

// Register adds an authenticated broker for a region.
func (r *Router) Register(name string, b Broker, region models.Region) {
	switch region {
	case models.RegionIndia:
		r.indiaBrokers[name] = b
	default:
		r.usBrokers[name] = b
	}
	r.logger.Info("broker registered", "name", name, "region", region)
}

// SetPreferences configures which broker each region prefers, plus the India
// fallback used when the preferred one is unavailable.
func (r *Router) SetPreferences(usPreferred, indiaPreferred, indiaFallback string) {
	r.usPreferred = usPreferred
	r.indiaPreferred = indiaPreferred
	r.indiaFallback = indiaFallback
	r.logger.Info("broker preferences set",
		"us", usPreferred, "india", indiaPreferred, "india_fallback", indiaFallback)
}

// ForSymbol returns the best available broker for a symbol's region.
func (r *Router) ForSymbol(symbol string) (Broker, error) {
	return r.ForRegion(models.DetectRegion(symbol))
}

// ForRegion returns the best available broker for a region.
func (r *Router) ForRegion(region models.Region) (Broker, error) {
	if region == models.RegionIndia {
		if b, ok := r.indiaBrokers[r.indiaPreferred]; ok {
			return b, nil
		}
		if b, ok := r.indiaBrokers[r.indiaFallback]; ok {
			r.logger.Info("india broker fallback",
				"preferred", r.indiaPreferred, "using", r.indiaFallback)
			return b, nil
		}
		for _, b := range r.indiaBrokers {
			return b, nil
		}
		return nil, fmt.Errorf("no broker available for region %s", region)
	}

	if b, ok := r.usBrokers[r.usPreferred]; ok {
		return b, nil
	}
	for _, b := range r.usBrokers {
		return b, nil
	}
	return nil, fmt.Errorf("no broker available for region %s", region)
}

// HasBroker reports whether any broker is registered for the region.
func (r *Router) HasBroker(region models.Region) bool {
	if region == models.RegionIndia {
		return len(r.indiaBrokers) > 0
	}
	return len(r.usBrokers) > 0
}

// Names returns the registered broker names tagged with their region.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.usBrokers)+len(r.indiaBrokers))
	for name := range r.usBrokers {
		names = append(names, fmt.Sprintf("%s (US)", name))
	}
	for name := range r.indiaBrokers {
		names = append(names, fmt.Sprintf("%s (IN)", name))
	}
	return names
}
