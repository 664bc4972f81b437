package file

import (
	"fmt"
	"mime"
	"path/filepath"
	"strconv"

	"github.com/opd-ai/otrdata/crypto"
	"github.com/opd-ai/otrdata/interfaces"
	"github.com/opd-ai/otrdata/limits"
	"github.com/opd-ai/otrdata/tlv"
	"github.com/opd-ai/otrdata/tunnel"
)

// DefaultMimeType is announced when the file extension is not recognised.
const DefaultMimeType = "application/octet-stream"

// outbound is a record waiting to be sent once the manager lock is released.
type outbound struct {
	peer   interfaces.Peer
	tag    any
	record tlv.Record
}

// mimeTypeFor guesses a MIME type from the file extension.
func mimeTypeFor(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return DefaultMimeType
}

// offerRecord announces an outgoing transfer. The offer's Request-Id is the
// transfer id, so the receiver's acknowledgement can be matched to it.
func offerRecord(o *OutgoingTransfer) tlv.Record {
	h := tunnel.Header{}
	h.Set(tunnel.HeaderRequestID, o.ID)
	h.Set(tunnel.HeaderFileName, o.FileName)
	h.Set(tunnel.HeaderFileLength, strconv.FormatInt(o.FileLength, 10))
	h.Set(tunnel.HeaderFileHash, o.FileHash)
	h.Set(tunnel.HeaderMimeType, o.MimeType)

	return tlv.Record{
		Type:  tlv.TypeDataRequest,
		Value: tunnel.SerializeRequest(tunnel.MethodOffer, tunnel.StorageURL(o.ID), h, nil),
	}
}

// fetchRecord requests one byte range of a transfer.
func fetchRecord(transferID, requestID string, r ByteRange) tlv.Record {
	h := tunnel.Header{}
	h.Set(tunnel.HeaderRequestID, requestID)
	h.Set(tunnel.HeaderRange, tunnel.FormatRange(r.Start, r.End))

	return tlv.Record{
		Type:  tlv.TypeDataRequest,
		Value: tunnel.SerializeRequest(tunnel.MethodGet, tunnel.StorageURL(transferID), h, nil),
	}
}

// responseRecord answers a request. A non-empty reason is sent as Error-Reason.
func responseRecord(status int, requestID string, body []byte, reason string) tlv.Record {
	h := tunnel.Header{}
	if requestID != "" {
		h.Set(tunnel.HeaderRequestID, requestID)
	}
	if reason != "" {
		h.Set(tunnel.HeaderErrorReason, reason)
	}

	return tlv.Record{
		Type:  tlv.TypeDataResponse,
		Value: tunnel.SerializeResponse(status, h, body),
	}
}

// offer is the metadata announced by an OFFER request.
type offer struct {
	id       string
	fileName string
	mimeType string
	length   int64
	hash     string
}

// parseOffer validates an OFFER request.
func parseOffer(msg *tunnel.Message) (offer, error) {
	id, ok := tunnel.TransferIDFromTarget(msg.Target)
	if !ok {
		return offer{}, fmt.Errorf("%w: offer target %q", tunnel.ErrMalformed, msg.Target)
	}
	if msg.Header.Has(tunnel.HeaderRange) {
		return offer{}, fmt.Errorf("%w: offer carries a Range header", tunnel.ErrMalformed)
	}

	o := offer{
		id:       id,
		fileName: msg.Header.Get(tunnel.HeaderFileName),
		mimeType: msg.Header.Get(tunnel.HeaderMimeType),
		hash:     msg.Header.Get(tunnel.HeaderFileHash),
	}
	if err := limits.ValidateFileName(o.fileName); err != nil {
		return offer{}, fmt.Errorf("%w: %v", tunnel.ErrMalformed, err)
	}

	length, err := strconv.ParseInt(msg.Header.Get(tunnel.HeaderFileLength), 10, 64)
	if err != nil {
		return offer{}, fmt.Errorf("%w: File-Length: %v", tunnel.ErrMalformed, err)
	}
	if err := limits.ValidateFileLength(length); err != nil {
		return offer{}, fmt.Errorf("%w: %v", tunnel.ErrMalformed, err)
	}
	o.length = length

	if !crypto.ValidDigest(o.hash) {
		return offer{}, fmt.Errorf("%w: File-Hash-SHA1 %q", tunnel.ErrMalformed, o.hash)
	}
	if o.mimeType == "" {
		o.mimeType = DefaultMimeType
	}
	return o, nil
}
