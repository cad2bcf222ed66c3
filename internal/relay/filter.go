package relay

import "github.com/quirze62/nodus/internal/types"

// BuildWireFilter converts a Filter to the NIP-01 JSON filter object.
func BuildWireFilter(f types.Filter) map[string]interface{} {
	wire := map[string]interface{}{}

	if len(f.IDs) > 0 {
		wire["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		wire["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		wire["kinds"] = f.Kinds
	}
	if f.Limit > 0 {
		wire["limit"] = f.Limit
	}
	if f.Since != nil {
		wire["since"] = *f.Since
	}
	if f.Until != nil {
		wire["until"] = *f.Until
	}
	if len(f.ETags) > 0 {
		wire["#e"] = f.ETags
	}
	if len(f.PTags) > 0 {
		wire["#p"] = f.PTags
	}

	return wire
}
