// README: Error kinds shared by the tracking core and its storage backends.
package types

import "errors"

var (
	ErrInvalidCoordinate  = errors.New("invalid coordinate")
	ErrInvalidFix         = errors.New("invalid fix")
	ErrUnknownAsset       = errors.New("unknown asset")
	ErrUnknownGeofence    = errors.New("unknown geofence")
	ErrOutOfOrder         = errors.New("fix older than latest ledger entry")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("already exists")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
