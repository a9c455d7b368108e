package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sells-group/accountsync/internal/model"
)

// ContentHash returns a hex SHA-256 digest of the view's content, excluding
// the hash itself and the build timestamp. Two rebuilds over identical source
// data produce identical hashes, so downstream consumers can use the hash as
// a cache key.
func ContentHash(view model.AccountView) string {
	view.ContentHash = ""
	view.BuiltAt = time.Time{}

	// A marshal failure here would mean a non-serializable model type, which
	// is a programming error; fall back to hashing the account id.
	data, err := json.Marshal(view)
	if err != nil {
		data = []byte(view.AccountID)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
