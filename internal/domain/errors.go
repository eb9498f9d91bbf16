// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrUnknownKind = errors.New("unknown event kind")
var ErrMissingID = errors.New("payload is missing an id")
var ErrNothingToExport = errors.New("nothing to export")
