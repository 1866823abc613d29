/*
registry.go - Record type registration and lookup

PURPOSE:
  The lifecycle package knows nothing about road tax or permits. Domain
  packages register the record types they own, and the engine, config
  loader and API use the registry to validate incoming type names.

USAGE:
  // In vehicle/types.go
  func init() {
      lifecycle.RegisterRecordType(lifecycle.RecordTypeInfo{
          Type: Tax, Name: "Road Tax", DefaultThreshold: TaxExpiryThreshold,
      })
  }

  info, ok := lifecycle.LookupRecordType("tax")
*/
package lifecycle

import (
	"fmt"
	"sort"
	"sync"
)

// RecordTypeInfo describes a registered record type.
type RecordTypeInfo struct {
	Type             RecordType
	Name             string
	DefaultThreshold int
}

var (
	typeRegistry = make(map[RecordType]RecordTypeInfo)
	registryMu   sync.RWMutex
)

// RegisterRecordType adds a record type to the global registry.
// Call this from domain package init() functions.
func RegisterRecordType(info RecordTypeInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	typeRegistry[info.Type] = info
}

// LookupRecordType finds a registered record type.
func LookupRecordType(rt RecordType) (RecordTypeInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := typeRegistry[rt]
	return info, ok
}

// ValidateRecordType returns ErrUnknownRecordType for unregistered types.
func ValidateRecordType(rt RecordType) error {
	if _, ok := LookupRecordType(rt); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRecordType, rt)
	}
	return nil
}

// ListRecordTypes returns all registered record types sorted by type.
func ListRecordTypes() []RecordTypeInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]RecordTypeInfo, 0, len(typeRegistry))
	for _, info := range typeRegistry {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// RegisteredThresholds builds a threshold table from every registered
// type's default, with overrides applied on top.
func RegisteredThresholds(defaultDays int, overrides map[RecordType]int) (Thresholds, error) {
	byType := make(map[RecordType]int)
	for _, info := range ListRecordTypes() {
		byType[info.Type] = info.DefaultThreshold
	}
	for rt, days := range overrides {
		if err := ValidateRecordType(rt); err != nil {
			return Thresholds{}, err
		}
		byType[rt] = days
	}
	return NewThresholds(defaultDays, byType)
}
