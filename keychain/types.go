package keychain

// KeyInfo is the public, ephemeral view of a stored key, derived fresh from
// a KeyRecord on every read. It is never persisted itself.
type KeyInfo struct {
	Name string
	ID   string
	// Path is set only when the Store reports a physical location for the
	// key (e.g. fsstore's resolved filename); otherwise empty.
	Path string
}

// CipherBlob is the return shape of the low-level _encrypt primitive.
type CipherBlob struct {
	Algorithm  string
	CipherData []byte
}

// rsaPKCS1Algorithm is the CipherBlob.Algorithm tag used throughout this
// package; spec.md §4.4 fixes this exact literal.
const rsaPKCS1Algorithm = "RSA_PKCS1_PADDING"

// Peer is the opaque foreign-identity object importPeer accepts. It exposes
// only what the keychain needs: a marshalled private-key envelope, and
// optionally a native string id the peer already computed for itself (a
// multihash, in the IPFS case) which — when present — is recorded verbatim
// instead of the local content address, per spec.md §4.4 / §9.
type Peer interface {
	PrivateKeyBlob() []byte
	NativeID() (id string, ok bool)
}

// PeerCodec decodes a Peer's marshalled private-key envelope into a raw DER
// SubjectPrivateKeyInfo (or PKCS#1) blob. This is the one collaborator
// spec.md §1 names explicitly as external: the wire format of a peer's
// private-key envelope is foreign to this module.
type PeerCodec interface {
	DecodeToDER(blob []byte) ([]byte, error)
}
