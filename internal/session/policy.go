package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"mqtt-cluster/config"
)

var (
	ErrUnknownUser        = errors.New("unknown user")
	ErrBadCredentials     = errors.New("bad credentials")
	ErrClientIDNotAllowed = errors.New("client id not allowed for user")
)

// user is a compiled UserConfig
type user struct {
	name           string
	password       []byte
	passwordHash   []byte
	clientIDPrefix string
	publish        *topicTree
	subscribe      *topicTree
	replication    bool
}

// Policy answers admission questions for a fixed set of users
type Policy struct {
	users map[string]*user
}

// NewPolicy compiles the given users. Later definitions of the same
// username are rejected.
func NewPolicy(users []config.UserConfig) (*Policy, error) {
	p := &Policy{users: make(map[string]*user, len(users))}

	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("username is required")
		}
		if _, dup := p.users[u.Username]; dup {
			return nil, fmt.Errorf("user %s defined more than once", u.Username)
		}

		compiled := &user{
			name:           u.Username,
			clientIDPrefix: u.ClientIDPrefix,
			publish:        newTopicTree(),
			subscribe:      newTopicTree(),
			replication:    u.Replication,
		}
		if u.PasswordHash != "" {
			if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
				return nil, fmt.Errorf("user %s: invalid password hash: %w", u.Username, err)
			}
			compiled.passwordHash = []byte(u.PasswordHash)
		} else {
			compiled.password = []byte(u.Password)
		}

		for _, f := range u.Publish {
			if err := compiled.publish.AddFilter(f); err != nil {
				return nil, fmt.Errorf("user %s publish: %w", u.Username, err)
			}
		}
		for _, f := range u.Subscribe {
			if err := compiled.subscribe.AddFilter(f); err != nil {
				return nil, fmt.Errorf("user %s subscribe: %w", u.Username, err)
			}
		}

		p.users[u.Username] = compiled
	}

	return p, nil
}

// Len returns the number of known users
func (p *Policy) Len() int {
	return len(p.users)
}

// authenticate checks credentials and the client id binding
func (p *Policy) authenticate(username, password, clientID string) (*user, error) {
	u, ok := p.users[username]
	if !ok {
		return nil, ErrUnknownUser
	}

	if u.passwordHash != nil {
		if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
			return nil, ErrBadCredentials
		}
	} else if subtle.ConstantTimeCompare(u.password, []byte(password)) != 1 {
		return nil, ErrBadCredentials
	}

	if !strings.HasPrefix(clientID, u.clientIDPrefix) {
		return nil, ErrClientIDNotAllowed
	}

	return u, nil
}

func (u *user) canPublish(topic string) bool {
	return validateTopicName(topic) == nil && u.publish.Covers(topic)
}

func (u *user) canSubscribe(filter string) bool {
	return validateTopicFilter(filter) == nil && u.subscribe.Covers(filter)
}
