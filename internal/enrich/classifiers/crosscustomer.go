package classifiers

import (
	"strings"
	"time"

	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/fingerprint"
)

// CrossCustomer flags device fingerprints seen across more than one company
// within the cross-customer retention window (24h default), a strong
// signal of shared device farms, browser-automation
// pools, or ad-fraud click rings operating across multiple pixel owners.
type CrossCustomer struct {
	tracker *fingerprint.Tracker
}

func NewCrossCustomer(t *fingerprint.Tracker) *CrossCustomer {
	return &CrossCustomer{tracker: t}
}

func (c *CrossCustomer) Name() string { return "crosscustomer" }

func (c *CrossCustomer) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	if snap.DeviceFingerprint == "" || ctx.Record.Company == "" {
		return nil
	}
	others := c.tracker.CrossCustomer(snap.DeviceFingerprint, ctx.Record.Company, time.Now())
	if len(others) == 0 {
		return nil
	}
	ctx.Append("crossCustomerCount", itoa(len(others)))
	ctx.Append("crossCustomerCompanies", strings.Join(others, ","))
	return nil
}
