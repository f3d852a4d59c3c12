// Package modelfile persists trained tokenizer models as JSON files.
//
// A model file is the JSON rendering of an api.Model plus a version field.
// Byte-level vocabularies are rendered through the printable display mapping
// on save and recovered on load, so the files stay valid UTF-8 and diffable
// even when entries hold arbitrary bytes.
//
// Save and Load coordinate through an advisory lock file next to the model
// path, so concurrent processes sharing a model directory never observe a
// half-written file.
package modelfile

import (
	"encoding/json"
	"math/rand"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/segtok/segtok/internal/bytemap"
	"github.com/segtok/segtok/tokenizers/api"
)

// Version identifies the file format written by this package.
const Version = "segtok.model/1"

// fileModel is the on-disk shape: the exported model with a format version.
type fileModel struct {
	Version string `json:"version"`
	api.Model
}

// Save writes the model to path, replacing any previous file atomically.
//
// The write goes to a uniquely named temporary file in the same directory,
// is synced, and then renamed over path, all under an exclusive advisory
// lock on path+".lock". When the model carries no ID a fresh one is stamped
// into the saved file; the caller's value is not modified.
func Save(path string, m *api.Model) error {
	if err := m.Validate(); err != nil {
		return errors.WithMessagef(err, "saving model to %q", path)
	}

	fm := fileModel{Version: Version, Model: *m}
	if fm.ID == "" {
		fm.ID = uuid.NewString()
	}
	if fm.Algorithm == api.ByteBPE {
		entries := make([]api.Entry, len(fm.Entries))
		copy(entries, fm.Entries)
		for i := range entries {
			entries[i].Content = bytemap.Encode([]byte(entries[i].Content))
		}
		fm.Entries = entries
	}

	data, err := json.MarshalIndent(&fm, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding model for %q", path)
	}
	data = append(data, '\n')

	var mainErr error
	errLock := withFileLock(path+".lock", false, func() {
		tmpPath := path + "." + uuid.NewString() + ".tmp"
		f, err := os.Create(tmpPath)
		if err != nil {
			mainErr = errors.Wrapf(err, "creating temporary model file %q", tmpPath)
			return
		}
		var done bool
		defer func() {
			// On any failure, drop the unfinished temporary file.
			if !done {
				if err := f.Close(); err != nil {
					klog.Warningf("closing temporary model file %q: %v", tmpPath, err)
				}
				if err := os.Remove(tmpPath); err != nil {
					klog.Warningf("removing temporary model file %q: %v", tmpPath, err)
				}
			}
		}()

		if _, err := f.Write(data); err != nil {
			mainErr = errors.Wrapf(err, "writing temporary model file %q", tmpPath)
			return
		}
		if err := f.Sync(); err != nil {
			mainErr = errors.Wrapf(err, "syncing temporary model file %q", tmpPath)
			return
		}
		done = true
		if err := f.Close(); err != nil {
			mainErr = errors.Wrapf(err, "closing temporary model file %q", tmpPath)
			return
		}
		if err := os.Rename(tmpPath, path); err != nil {
			mainErr = errors.Wrapf(err, "moving model file %q to %q", tmpPath, path)
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking to save %q", path)
	}
	return nil
}

// Load reads a model file written by Save, under a shared advisory lock on
// path+".lock". The decoded model is validated; corrupt files, version
// mismatches, and byte-level contents outside the display mapping all report
// api.ErrInvalidModel.
func Load(path string) (*api.Model, error) {
	var data []byte
	var mainErr error
	errLock := withFileLock(path+".lock", true, func() {
		data, mainErr = os.ReadFile(path)
	})
	if mainErr != nil {
		return nil, errors.Wrapf(mainErr, "reading model file %q", path)
	}
	if errLock != nil {
		return nil, errors.WithMessagef(errLock, "while locking to load %q", path)
	}

	var fm fileModel
	if err := json.Unmarshal(data, &fm); err != nil {
		return nil, errors.Wrapf(api.ErrInvalidModel, "parsing model file %q: %v", path, err)
	}
	if fm.Version != Version {
		return nil, errors.Wrapf(api.ErrInvalidModel, "model file %q has version %q, want %q", path, fm.Version, Version)
	}
	if fm.Algorithm == api.ByteBPE {
		for i := range fm.Entries {
			raw, err := bytemap.Decode(fm.Entries[i].Content)
			if err != nil {
				return nil, errors.Wrapf(api.ErrInvalidModel, "model file %q entry %d: %v", path, i, err)
			}
			fm.Entries[i].Content = string(raw)
		}
	}
	if err := fm.Model.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "model file %q", path)
	}
	return &fm.Model, nil
}

// withFileLock opens lockPath (creating it if needed), acquires the advisory
// lock, and runs fn. Shared picks a read lock, so concurrent loads proceed
// while saves wait. If the lock is held elsewhere it polls with a 1 to 2
// second period until acquired.
//
// The lock file is left in place: later saves and loads of the same path
// reuse it.
func withFileLock(lockPath string, shared bool, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		var locked bool
		var err error
		if shared {
			locked, err = fileLock.TryRLock()
		} else {
			locked, err = fileLock.TryLock()
		}
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(1000+rand.Intn(1000)))
	}
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking %q", lockPath)
			} else {
				klog.Warningf("unlocking %q: %v", lockPath, unlockErr)
			}
		}
	}()

	fn()
	return
}
