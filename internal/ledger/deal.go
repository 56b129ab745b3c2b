package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Package is a promotion tier. A deal carries PackageNone until a checkout
// for it completes.
type Package string

const (
	PackageNone    Package = "none"
	PackageFlame   Package = "flame"
	PackageInferno Package = "inferno"
)

// ParsePackage validates a purchasable package type from request or webhook
// metadata. PackageNone is not purchasable.
func ParsePackage(s string) (Package, error) {
	switch Package(strings.ToLower(strings.TrimSpace(s))) {
	case PackageFlame:
		return PackageFlame, nil
	case PackageInferno:
		return PackageInferno, nil
	}
	return "", fmt.Errorf("unknown package type %q", s)
}

// Deal is one promotable offer in the ledger document. The ledger builder
// publishes more fields than this service cares about (summary, value_score,
// ...), so decoding keeps every original key and re-emits it untouched; only
// promoted and package are owned by this service.
type Deal struct {
	ID       string
	Brand    string
	URL      string
	Promoted bool
	Package  Package

	raw map[string]json.RawMessage
}

// NormalizeID maps the textual and numeric spellings of a deal identifier to
// one comparable form.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

func (d *Deal) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.raw = raw
	d.ID = stringField(raw["id"])
	d.Brand = stringField(raw["brand"])
	d.URL = stringField(raw["url"])

	d.Promoted = false
	if v, ok := raw["promoted"]; ok {
		if err := json.Unmarshal(v, &d.Promoted); err != nil {
			return fmt.Errorf("deal %s: promoted: %w", d.ID, err)
		}
	}
	d.Package = PackageNone
	if v, ok := raw["package"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("deal %s: package: %w", d.ID, err)
		}
		if s != "" {
			d.Package = Package(s)
		}
	}
	return nil
}

func (d Deal) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.raw)+4)
	for k, v := range d.raw {
		out[k] = v
	}
	if _, ok := out["id"]; !ok {
		out["id"], _ = json.Marshal(d.ID)
	}
	if _, ok := out["brand"]; !ok {
		out["brand"], _ = json.Marshal(d.Brand)
	}
	if _, ok := out["url"]; !ok {
		out["url"], _ = json.Marshal(d.URL)
	}
	out["promoted"], _ = json.Marshal(d.Promoted)
	pkg := d.Package
	if pkg == "" {
		pkg = PackageNone
	}
	out["package"], _ = json.Marshal(pkg)
	return json.Marshal(out)
}

// stringField reads a JSON value that may arrive as either a string or a
// number (deal ids do) into its string form.
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
