// Package syncengine drives workspace synchronization: encrypt, push with an
// optimistic version, and surface conflicts to the caller. The engine never
// retries a conflicted push on its own; resolving is an explicit step so the
// user-facing layer stays in control of merges.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/avoronov/planvault/internal/client/models"
	"github.com/avoronov/planvault/internal/client/repositories/localstate"
	"github.com/avoronov/planvault/internal/client/transport"
	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/cryptox"
	"github.com/avoronov/planvault/internal/logging"
	"github.com/google/uuid"
)

// State of the push cycle.
type State string

const (
	StateIdle       State = "idle"
	StatePushing    State = "pushing"
	StateCommitted  State = "committed"
	StateConflicted State = "conflicted"
)

// API is the slice of the backend client the engine needs.
type API interface {
	GetWorkspace(ctx context.Context) (*transport.Workspace, error)
	PushWorkspace(ctx context.Context, blob []byte, version int64, deviceID string) (int64, error)
}

// Keys provides the master key for blob encryption.
type Keys interface {
	MasterKey() ([]byte, error)
}

// Conflict is returned from Push when the server holds a newer version. It
// carries the decrypted remote workspace so the caller can merge and call
// Resolve. errors.Is(err, common.ErrVersionConflict) holds.
type Conflict struct {
	RemoteVersion int64
	Remote        *models.Workspace
}

func (c *Conflict) Error() string {
	return fmt.Sprintf("workspace conflict: remote version %d", c.RemoteVersion)
}

func (c *Conflict) Is(target error) bool { return target == common.ErrVersionConflict }

type Engine struct {
	api    API
	keys   Keys
	state  localstate.Repository
	logger logging.Logger

	mu     sync.Mutex
	status State
}

func NewEngine(api API, keys Keys, state localstate.Repository, logger logging.Logger) *Engine {
	return &Engine{
		api:    api,
		keys:   keys,
		state:  state,
		logger: logger.With("module", "syncengine"),
		status: StateIdle,
	}
}

func (e *Engine) Status() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s State) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// DeviceID returns the stable identifier of this installation, minting one
// on first use.
func (e *Engine) DeviceID(ctx context.Context) (string, error) {
	id, err := e.state.Get(ctx, localstate.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if id != nil {
		return string(id), nil
	}

	fresh := uuid.NewString()
	if err := e.state.Set(ctx, localstate.KeyDeviceID, []byte(fresh)); err != nil {
		return "", err
	}
	return fresh, nil
}

// Pull fetches, decrypts and caches the remote workspace. A server that has
// never seen a push returns version 0 and an empty workspace.
func (e *Engine) Pull(ctx context.Context) (*models.Workspace, int64, error) {
	masterKey, err := e.keys.MasterKey()
	if err != nil {
		return nil, 0, err
	}

	remote, err := e.api.GetWorkspace(ctx)
	if err != nil {
		return nil, 0, err
	}

	if remote.Version == 0 {
		return &models.Workspace{}, 0, nil
	}

	plaintext, err := cryptox.Decrypt(masterKey, remote.Blob)
	if err != nil {
		return nil, 0, err
	}

	ws, err := models.DecodeWorkspace(plaintext)
	if err != nil {
		return nil, 0, err
	}

	if err := e.cache(ctx, remote.Blob, remote.Version); err != nil {
		return nil, 0, err
	}

	return ws, remote.Version, nil
}

// Load returns the locally cached workspace without touching the network,
// or (empty, 0) when nothing is cached yet.
func (e *Engine) Load(ctx context.Context) (*models.Workspace, int64, error) {
	masterKey, err := e.keys.MasterKey()
	if err != nil {
		return nil, 0, err
	}

	blob, err := e.state.Get(ctx, localstate.KeyWorkspaceBlob)
	if err != nil {
		return nil, 0, err
	}
	if blob == nil {
		return &models.Workspace{}, 0, nil
	}

	rawVersion, err := e.state.Get(ctx, localstate.KeyWorkspaceVersion)
	if err != nil {
		return nil, 0, err
	}
	version := decodeVersion(rawVersion)

	plaintext, err := cryptox.Decrypt(masterKey, blob)
	if err != nil {
		return nil, 0, err
	}

	ws, err := models.DecodeWorkspace(plaintext)
	if err != nil {
		return nil, 0, err
	}
	return ws, version, nil
}

// Push encrypts ws and submits it at baseVersion+1. On a version conflict it
// pulls and decrypts the remote workspace, moves to StateConflicted and
// returns *Conflict. Any other failure leaves the cached state untouched.
func (e *Engine) Push(ctx context.Context, ws *models.Workspace, baseVersion int64) (int64, error) {
	e.setStatus(StatePushing)

	version, err := e.push(ctx, ws, baseVersion+1)
	if err == nil {
		e.setStatus(StateCommitted)
		return version, nil
	}

	if errors.Is(err, common.ErrVersionConflict) {
		e.setStatus(StateConflicted)

		remote, remoteVersion, pullErr := e.Pull(ctx)
		if pullErr != nil {
			return 0, fmt.Errorf("fetching remote after conflict: %w", pullErr)
		}
		e.logger.Warn(ctx, "push rejected", "remoteVersion", remoteVersion)
		return 0, &Conflict{RemoteVersion: remoteVersion, Remote: remote}
	}

	e.setStatus(StateIdle)
	return 0, err
}

// Resolve pushes a merged workspace on top of the conflicting remote
// version. The caller passes the RemoteVersion from the Conflict it is
// resolving.
func (e *Engine) Resolve(ctx context.Context, merged *models.Workspace, remoteVersion int64) (int64, error) {
	return e.Push(ctx, merged, remoteVersion)
}

func (e *Engine) push(ctx context.Context, ws *models.Workspace, version int64) (int64, error) {
	masterKey, err := e.keys.MasterKey()
	if err != nil {
		return 0, err
	}

	plaintext, err := ws.Encode()
	if err != nil {
		return 0, err
	}

	blob, err := cryptox.Encrypt(masterKey, plaintext)
	if err != nil {
		return 0, err
	}

	deviceID, err := e.DeviceID(ctx)
	if err != nil {
		return 0, err
	}

	accepted, err := e.api.PushWorkspace(ctx, blob, version, deviceID)
	if err != nil {
		return 0, err
	}

	if err := e.cache(ctx, blob, accepted); err != nil {
		return 0, err
	}
	return accepted, nil
}

func (e *Engine) cache(ctx context.Context, blob []byte, version int64) error {
	if err := e.state.Set(ctx, localstate.KeyWorkspaceBlob, blob); err != nil {
		return err
	}
	return e.state.Set(ctx, localstate.KeyWorkspaceVersion, encodeVersion(version))
}

func encodeVersion(v int64) []byte {
	return []byte(strconv.FormatInt(v, 10))
}

func decodeVersion(raw []byte) int64 {
	v, _ := strconv.ParseInt(string(raw), 10, 64)
	return v
}
