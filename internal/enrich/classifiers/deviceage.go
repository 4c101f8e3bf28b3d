package classifiers

import (
	"strconv"
	"strings"
	"time"

	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/gpu"
)

// DeviceAge triangulates the device's GPU release year, OS release year,
// and browser release year to estimate overall device age and flag
// implausible combinations (e.g. a 2024 GPU paired with a 2012-era OS).
type DeviceAge struct {
	gpuTable *gpu.Table
	nowYear  func() int
}

func NewDeviceAge(t *gpu.Table) *DeviceAge {
	return &DeviceAge{gpuTable: t, nowYear: func() int { return time.Now().Year() }}
}

func (c *DeviceAge) Name() string { return "deviceage" }

// osReleaseYears maps an OS family/major-version prefix to its approximate
// first-shipped year, covering the OS versions the client fingerprinting
// script can report via navigator.platform/userAgentData.
var osReleaseYears = map[string]int{
	"windows 11": 2021, "windows 10": 2015, "windows 8.1": 2013, "windows 8": 2012,
	"windows 7": 2009, "windows vista": 2007, "windows xp": 2001,
	"mac os x 14": 2023, "mac os x 13": 2022, "mac os x 12": 2021, "mac os x 11": 2020,
	"mac os x 10.15": 2019, "mac os x 10.14": 2018, "mac os x 10.13": 2017,
	"ios 17": 2023, "ios 16": 2022, "ios 15": 2021, "ios 14": 2020,
	"android 14": 2023, "android 13": 2022, "android 12": 2021, "android 11": 2020,
	"android 10": 2019,
}

// browserMajorBaseYear anchors a browser family's major-version numbering
// to a (version, year) pair so a reported major version can be projected
// to an approximate release year; `perYear` is roughly how many major
// versions the family ships per year within the modeled range.
var browserMajorBaseYear = map[string]struct {
	version int
	year    int
	perYear float64
}{
	"chrome":  {115, 2023, 15},
	"edge":    {115, 2023, 15},
	"firefox": {118, 2023, 11},
	"safari":  {17, 2023, 1},
}

func (c *DeviceAge) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	years := make([]int, 0, 3)

	gpuYear, gpuOK := c.gpuTable.LookupYear(snap.GPURenderer)
	if gpuOK {
		years = append(years, gpuYear)
	}

	osYear, osOK := osYearFor(ctx)
	if osOK {
		years = append(years, osYear)
	}

	browserYear, browserOK := browserYearFor(ctx, c.nowYear())
	if browserOK {
		years = append(years, browserYear)
	}

	if !gpuOK {
		return nil
	}

	age := c.nowYear() - gpuYear
	if age < 0 {
		age = 0
	}
	ctx.Append("deviceAge", itoa(age))

	if anomaly(years) {
		ctx.Append("ageAnomaly", "true")
	}
	return nil
}

// anomaly flags a combination where the oldest and newest triangulated
// years disagree by more than a decade: a genuine device upgrades OS,
// browser, and GPU within a few years of each other, while a spoofed
// fingerprint often mismatches them arbitrarily.
func anomaly(years []int) bool {
	if len(years) < 2 {
		return false
	}
	min, max := years[0], years[0]
	for _, y := range years[1:] {
		if y < min {
			min = y
		}
		if y > max {
			max = y
		}
	}
	return max-min > 10
}

func osYearFor(ctx *enrich.Context) (int, bool) {
	os, ok := ctx.Get("os")
	if !ok {
		return 0, false
	}
	ver, _ := ctx.Get("osVer")
	key := strings.ToLower(strings.TrimSpace(os + " " + ver))
	if y, ok := osReleaseYears[key]; ok {
		return y, true
	}
	// fall back to a family-only prefix match (e.g. "windows 10" within "windows 10 22h2")
	for k, y := range osReleaseYears {
		if strings.HasPrefix(key, k) {
			return y, true
		}
	}
	return 0, false
}

func browserYearFor(ctx *enrich.Context, nowYear int) (int, bool) {
	browser, ok := ctx.Get("browser")
	if !ok {
		return 0, false
	}
	verStr, ok := ctx.Get("browserVer")
	if !ok {
		return 0, false
	}
	major := verStr
	if i := strings.IndexByte(verStr, '.'); i >= 0 {
		major = verStr[:i]
	}
	majorNum, err := strconv.Atoi(major)
	if err != nil {
		return 0, false
	}
	base, ok := browserMajorBaseYear[strings.ToLower(browser)]
	if !ok {
		return 0, false
	}
	year := base.year + int(float64(majorNum-base.version)/base.perYear)
	if year > nowYear {
		year = nowYear
	}
	return year, true
}
