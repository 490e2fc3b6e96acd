// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains code relating to Go types as seen by the type
checker. It turns go/types types into the host types the type registries and
generated code use, enumerates the "db" tagged fields of named output types,
and derives Go field names from column names.

As much as possible, go/types code is limited to this package and to the
source scanner.
*/
package typeinfo
