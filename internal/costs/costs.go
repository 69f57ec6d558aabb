// Package costs produces monthly price estimates for requested resources
// from a static us-east-1 price table. The numbers are approximations;
// real billing depends on usage, region, and current provider pricing.
package costs

import (
	"math"

	"github.com/tfgate/tfgate/internal/render"
)

// LineItem is the estimate for one resource.
type LineItem struct {
	Type         string             `json:"type"`
	Breakdown    map[string]float64 `json:"breakdown"`
	MonthlyTotal float64            `json:"monthly_total"`
}

// Estimate is an itemized monthly cost projection.
type Estimate struct {
	MonthlyTotal float64    `json:"monthly_total"`
	AnnualTotal  float64    `json:"annual_total"`
	Items        []LineItem `json:"items"`
	Region       string     `json:"region"`
	Note         string     `json:"note"`
}

// Estimator projects monthly costs for a set of resources.
type Estimator interface {
	Estimate(region string, resources []render.Resource) *Estimate
}

const estimateNote = "Estimates assume 730 hours/month at on-demand pricing; actual costs vary with usage, region, and provider pricing changes."

// Unknown resources and sizes fall back to flat defaults rather than
// failing the whole estimate.
const (
	defaultResourceCost = 5.0
	defaultInstanceCost = 10.0
	defaultDatabaseCost = 15.0
)

// StaticEstimator prices resources from built-in tables.
type StaticEstimator struct{}

func NewStaticEstimator() *StaticEstimator { return &StaticEstimator{} }

// Monthly on-demand prices, us-east-1.
var (
	instancePrices = map[string]float64{
		"t3.nano":    3.80,
		"t3.micro":   7.66,
		"t3.small":   15.33,
		"t3.medium":  30.66,
		"t3.large":   61.32,
		"t3.xlarge":  122.63,
		"t3.2xlarge": 245.27,
		"t2.micro":   8.47,
		"t2.small":   16.94,
		"t2.medium":  33.87,
		"t2.large":   67.74,
		"c5.large":   62.78,
		"c5.xlarge":  125.55,
		"c5.2xlarge": 251.10,
		"m5.large":   70.08,
		"m5.xlarge":  140.16,
		"m5.2xlarge": 280.32,
		"r5.large":   91.98,
		"r5.xlarge":  183.96,
		"r5.2xlarge": 367.92,
	}
	databasePrices = map[string]float64{
		"db.t3.micro":  11.68,
		"db.t3.small":  23.36,
		"db.t3.medium": 46.72,
		"db.t3.large":  93.44,
		"db.t2.micro":  13.14,
		"db.t2.small":  26.28,
		"db.m5.large":  131.40,
		"db.m5.xlarge": 262.80,
		"db.r5.large":  175.20,
	}
	// Per GB per month.
	volumePrices = map[string]float64{
		"gp3":      0.08,
		"gp2":      0.10,
		"io2":      0.125,
		"st1":      0.045,
		"standard": 0.05,
	}
	databaseStoragePrices = map[string]float64{
		"gp2": 0.115,
		"gp3": 0.092,
		"io1": 0.125,
	}
	bucketStoragePrices = map[string]float64{
		"standard":    0.023,
		"standard_ia": 0.0125,
		"glacier":     0.004,
	}
	loadBalancerPrices = map[string]float64{
		"application": 18.40,
		"network":     18.40,
	}
)

const (
	loadBalancerLCUHour = 0.008
	backupPerGB         = 0.095
	putRequestPerK      = 0.005
)

// Some regions price above us-east-1.
var regionMultipliers = map[string]float64{
	"us-east-1":      1.0,
	"us-east-2":      1.0,
	"us-west-1":      1.0,
	"us-west-2":      1.0,
	"eu-west-1":      1.0,
	"eu-west-2":      1.02,
	"eu-central-1":   1.05,
	"ap-southeast-1": 1.10,
	"ap-southeast-2": 1.12,
	"ap-northeast-1": 1.15,
	"sa-east-1":      1.25,
	"ca-central-1":   1.02,
}

const unknownRegionMultiplier = 1.05

func (e *StaticEstimator) Estimate(region string, resources []render.Resource) *Estimate {
	mult, ok := regionMultipliers[region]
	if !ok {
		mult = unknownRegionMultiplier
	}

	est := &Estimate{Region: region, Note: estimateNote}
	for _, res := range resources {
		item := priceResource(res)
		item.MonthlyTotal = roundCents(item.MonthlyTotal * mult)
		for k, v := range item.Breakdown {
			item.Breakdown[k] = roundCents(v * mult)
		}
		est.Items = append(est.Items, item)
		est.MonthlyTotal += item.MonthlyTotal
	}
	est.MonthlyTotal = roundCents(est.MonthlyTotal)
	est.AnnualTotal = roundCents(est.MonthlyTotal * 12)
	return est
}

func priceResource(res render.Resource) LineItem {
	switch res.Type {
	case "aws_instance":
		return priceInstance(res.Config)
	case "aws_db_instance":
		return priceDatabase(res.Config)
	case "aws_s3_bucket":
		return priceBucket(res.Config)
	case "aws_lb":
		return priceLoadBalancer(res.Config)
	default:
		return LineItem{
			Type:         res.Type,
			Breakdown:    map[string]float64{"flat": defaultResourceCost},
			MonthlyTotal: defaultResourceCost,
		}
	}
}

func priceInstance(cfg map[string]any) LineItem {
	compute, ok := instancePrices[stringOpt(cfg, "instance_type", "t3.micro")]
	if !ok {
		compute = defaultInstanceCost
	}
	perGB, ok := volumePrices[stringOpt(cfg, "root_volume_type", "gp3")]
	if !ok {
		perGB = 0.10
	}
	storage := perGB * float64(intOpt(cfg, "root_volume_size", 30))

	return LineItem{
		Type:         "aws_instance",
		Breakdown:    map[string]float64{"compute": compute, "storage": storage},
		MonthlyTotal: compute + storage,
	}
}

func priceDatabase(cfg map[string]any) LineItem {
	compute, ok := databasePrices[stringOpt(cfg, "instance_class", "db.t3.micro")]
	if !ok {
		compute = defaultDatabaseCost
	}
	perGB, ok := databaseStoragePrices[stringOpt(cfg, "storage_type", "gp3")]
	if !ok {
		perGB = 0.115
	}
	gb := intOpt(cfg, "allocated_storage", 20)
	storage := perGB * float64(gb)

	// Multi-AZ doubles compute and storage.
	if boolOpt(cfg, "multi_az", false) {
		compute *= 2
		storage *= 2
	}

	// First backup GB is free.
	backup := 0.0
	if gb > 1 {
		backup = float64(gb-1) * backupPerGB
	}

	return LineItem{
		Type:         "aws_db_instance",
		Breakdown:    map[string]float64{"compute": compute, "storage": storage, "backup": backup},
		MonthlyTotal: compute + storage + backup,
	}
}

func priceBucket(cfg map[string]any) LineItem {
	perGB, ok := bucketStoragePrices[stringOpt(cfg, "storage_class", "standard")]
	if !ok {
		perGB = 0.023
	}
	storage := perGB * float64(intOpt(cfg, "estimated_size_gb", 10))
	requests := float64(intOpt(cfg, "requests_per_month", 10000)) / 1000 * putRequestPerK

	return LineItem{
		Type:         "aws_s3_bucket",
		Breakdown:    map[string]float64{"storage": storage, "requests": requests},
		MonthlyTotal: storage + requests,
	}
}

func priceLoadBalancer(cfg map[string]any) LineItem {
	base, ok := loadBalancerPrices[stringOpt(cfg, "load_balancer_type", "application")]
	if !ok {
		base = 18.40
	}
	lcu := float64(intOpt(cfg, "lcu_hours", 730)) * loadBalancerLCUHour

	return LineItem{
		Type:         "aws_lb",
		Breakdown:    map[string]float64{"base": base, "capacity_units": lcu},
		MonthlyTotal: base + lcu,
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func stringOpt(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intOpt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func boolOpt(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}
