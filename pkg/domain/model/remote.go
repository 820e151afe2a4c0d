package model

// RemoteInfo is the result of probing a source URL before planning a
// transfer.
type RemoteInfo struct {
	Size         int64  // -1 when the server does not report a length
	Rangeable    bool   // server accepts byte-range requests
	ETag         string // validator, may be empty
	LastModified string // validator, may be empty
	Filename     string // from Content-Disposition or the URL path, may be empty
	FinalURL     string // URL after following redirects
}

// Validator returns the strongest validator the remote offered, used as
// the If-Range value on subsequent requests.
func (x *RemoteInfo) Validator() string {
	if x.ETag != "" {
		return x.ETag
	}
	return x.LastModified
}
