package clearing

import "github.com/xraph/clearing/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Amount constructors
var (
	CXX  = types.CXX
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	ZAR  = types.ZAR
	In   = types.In
	Zero = types.Zero
	Sum  = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
