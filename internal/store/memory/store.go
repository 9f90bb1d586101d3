// Package memory implementa los repositorios del dominio sobre maps en
// memoria, con la misma semántica condicional que el adapter pg. Se usa en
// tests y en modo dev; no es multi-proceso.
package memory

import (
	"sync"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

// Store agrupa el estado en memoria detrás de un solo mutex.
type Store struct {
	mu sync.Mutex

	users       map[string]*repository.User
	servers     map[string]*repository.Server // por uuid
	serverIdent map[string]string             // identifier corto -> uuid
	nodes       map[string]*repository.Node
	nodeConns   map[string]*repository.NodeConnection
	allocations map[int64]*repository.Allocation
	tokens      map[string]*repository.SecureToken
	transfers   map[string]*repository.TransferRecord
	grants      map[string]map[string][]string // serverUUID -> userID -> perms
	audits      []*repository.AuditEvent
}

// New crea un Store vacío.
func New() *Store {
	return &Store{
		users:       map[string]*repository.User{},
		servers:     map[string]*repository.Server{},
		serverIdent: map[string]string{},
		nodes:       map[string]*repository.Node{},
		nodeConns:   map[string]*repository.NodeConnection{},
		allocations: map[int64]*repository.Allocation{},
		tokens:      map[string]*repository.SecureToken{},
		transfers:   map[string]*repository.TransferRecord{},
		grants:      map[string]map[string][]string{},
	}
}

// Accessors tipados, estilo adapter registry.

func (s *Store) Users() repository.UserRepository              { return (*userRepo)(s) }
func (s *Store) Servers() repository.ServerRepository          { return (*serverRepo)(s) }
func (s *Store) Nodes() repository.NodeRepository              { return (*nodeRepo)(s) }
func (s *Store) Allocations() repository.AllocationRepository  { return (*allocationRepo)(s) }
func (s *Store) SecureTokens() repository.SecureTokenRepository { return (*tokenRepo)(s) }
func (s *Store) Transfers() repository.TransferRepository      { return (*transferRepo)(s) }
func (s *Store) Grants() repository.GrantRepository            { return (*grantRepo)(s) }
func (s *Store) AuditEvents() repository.AuditEventRepository  { return (*auditRepo)(s) }

// ---------------------------------------------------------------------------
// Seeds (tests / dev bootstrap)
// ---------------------------------------------------------------------------

// SeedUser inserta o reemplaza un usuario.
func (s *Store) SeedUser(u repository.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

// SeedServer inserta o reemplaza un server.
func (s *Store) SeedServer(sv repository.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sv
	s.servers[sv.UUID] = &cp
	if sv.Identifier != "" {
		s.serverIdent[sv.Identifier] = sv.UUID
	}
}

// SeedNode inserta un node con su secreto de conexión.
func (s *Store) SeedNode(n repository.Node, conn repository.NodeConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ncp, ccp := n, conn
	s.nodes[n.ID] = &ncp
	s.nodeConns[n.ID] = &ccp
}

// SeedAllocation inserta o reemplaza una allocation.
func (s *Store) SeedAllocation(a repository.Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.allocations[a.ID] = &cp
}

// SeedGrant registra permisos explícitos de un usuario sobre un server.
func (s *Store) SeedGrant(serverUUID, userID string, perms []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.grants[serverUUID]
	if !ok {
		m = map[string][]string{}
		s.grants[serverUUID] = m
	}
	m[userID] = append([]string(nil), perms...)
}

// AuditLog retorna una copia de los eventos registrados (tests).
func (s *Store) AuditLog() []*repository.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*repository.AuditEvent, len(s.audits))
	copy(out, s.audits)
	return out
}
