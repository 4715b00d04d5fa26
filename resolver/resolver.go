// Package resolver computes the authoritative value for one
// (device, mapping) pair from the mapping's declared data source.
package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/attrsync/attrsync/sources"
	"github.com/attrsync/attrsync/types"
)

// Status classifies the result of a resolution. "No value" is an
// expected case, never an error thrown through control flow.
type Status string

const (
	// StatusFound means a non-empty final value was produced.
	StatusFound Status = "found"
	// StatusNotFound means no source value exists and no default applies.
	StatusNotFound Status = "not_found"
	// StatusError means the source lookup failed and no default applies.
	StatusError Status = "error"
)

// Resolution is the ephemeral result of resolving one mapping for one
// device.
type Resolution struct {
	Status    Status
	Value     string // final value, after extraction and default fallback
	Raw       string
	Extracted string
	Source    types.DataSource
	Err       error // set only when Status is StatusError
}

// Found reports whether a usable value was produced.
func (r Resolution) Found() bool { return r.Status == StatusFound }

// Resolver fetches raw values from the declared data source and applies
// regex extraction and default fallback.
type Resolver struct {
	directory sources.DirectoryClient
	endpoint  sources.EndpointClient
	patterns  map[string]*regexp.Regexp // keyed by mapping target key
	log       zerolog.Logger
}

// New builds a resolver, compiling every mapping regex once.
func New(directory sources.DirectoryClient, endpoint sources.EndpointClient, mappings []types.AttributeMapping, log zerolog.Logger) (*Resolver, error) {
	patterns := make(map[string]*regexp.Regexp)
	for _, m := range mappings {
		if m.Regex == "" {
			continue
		}
		re, err := regexp.Compile(m.Regex)
		if err != nil {
			return nil, err
		}
		patterns[m.TargetKey()] = re
	}

	return &Resolver{
		directory: directory,
		endpoint:  endpoint,
		patterns:  patterns,
		log:       log,
	}, nil
}

// Resolve never fails: lookup and parse failures degrade to the
// mapping's default value, or to an unavailable result when no default
// is configured.
func (r *Resolver) Resolve(ctx context.Context, device types.DeviceIdentity, mapping types.AttributeMapping) Resolution {
	raw, err := r.lookup(ctx, device, mapping)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("device", device.DisplayName).
			Str("attribute", mapping.TargetAttribute).
			Str("source", string(mapping.DataSource)).
			Msg("source lookup failed, falling back to default")
		raw = ""
	}

	res := Resolution{Raw: raw, Source: mapping.DataSource}

	candidate := raw
	if candidate == "" {
		candidate = mapping.DefaultValue
	}

	if re, ok := r.patterns[mapping.TargetKey()]; ok && candidate != "" {
		extracted, matched := extract(re, candidate)
		if matched {
			res.Extracted = extracted
			candidate = extracted
		} else {
			// A match failure means "value unavailable", not the
			// unmatched raw value.
			candidate = mapping.DefaultValue
		}
	}

	res.Value = candidate
	switch {
	case candidate != "":
		res.Status = StatusFound
	case err != nil:
		res.Status = StatusError
		res.Err = err
	default:
		res.Status = StatusNotFound
	}
	return res
}

// extract applies the pattern: the first successful capture group wins,
// or the whole match when the pattern has no groups.
func extract(re *regexp.Regexp, value string) (string, bool) {
	groups := re.FindStringSubmatch(value)
	if groups == nil {
		return "", false
	}
	for _, g := range groups[1:] {
		if g != "" {
			return g, true
		}
	}
	return groups[0], true
}

func (r *Resolver) lookup(ctx context.Context, device types.DeviceIdentity, mapping types.AttributeMapping) (string, error) {
	switch mapping.DataSource {
	case types.SourceDirectory:
		return r.directory.GetComputerAttribute(ctx, device.DisplayName, mapping.SourceAttribute)
	case types.SourceEndpoint:
		return r.lookupEndpoint(ctx, device, mapping)
	default:
		return "", nil
	}
}

// lookupEndpoint finds the managed-device record by identifier, falling
// back to lookup by name, then reads the source attribute from either
// the hardware-info map or the record itself.
func (r *Resolver) lookupEndpoint(ctx context.Context, device types.DeviceIdentity, mapping types.AttributeMapping) (string, error) {
	managed, err := r.endpoint.GetDeviceByExternalID(ctx, device.DeviceID)
	if err != nil {
		return "", err
	}
	if managed == nil {
		managed, err = r.endpoint.GetDeviceByName(ctx, device.DisplayName)
		if err != nil {
			return "", err
		}
	}
	if managed == nil {
		return "", nil
	}

	if mapping.UseHardwareInfo {
		hardware, err := r.endpoint.GetHardwareInfo(ctx, managed.ID)
		if err != nil {
			return "", err
		}
		return hardware[strings.ToLower(mapping.SourceAttribute)], nil
	}

	value, _ := sources.ManagedDeviceField(managed, mapping.SourceAttribute)
	return value, nil
}
