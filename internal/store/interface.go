package store

import "imgstore/internal/blobstore"

var _ blobstore.Backend = (*Store)(nil)
