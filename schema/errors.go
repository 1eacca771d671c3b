package schema

import "github.com/ncbi/psg-cassvc/errors"

var errDuplicateResolver = errors.New(errors.ResolverKeyspaceDuplicated, "resolver keyspace duplicated in sat2keyspace")
