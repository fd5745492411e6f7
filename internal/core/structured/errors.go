package structured

import "errors"

var errTrailingData = errors.New("trailing data after json value")
