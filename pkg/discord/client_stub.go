package discord

import (
	"context"
	"sync"
)

type RoleAssignment struct {
	UserId string
	RoleId string
}

type ClientStub struct {
	mu          sync.Mutex
	channels    map[string]string
	roles       map[string]SeriesRoles
	assignErrs  map[string]error // userId -> error
	assignments []RoleAssignment
}

func NewClientStub() *ClientStub {
	return &ClientStub{
		channels:   make(map[string]string),
		roles:      make(map[string]SeriesRoles),
		assignErrs: make(map[string]error),
	}
}

func (c *ClientStub) AssignRole(ctx context.Context, userId string, roleId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.assignErrs[userId]; ok {
		return err
	}
	c.assignments = append(c.assignments, RoleAssignment{UserId: userId, RoleId: roleId})
	return nil
}

func (c *ClientStub) ChannelForSeries(ctx context.Context, seriesId string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	channelId, ok := c.channels[seriesId]
	return channelId, ok, nil
}

func (c *ClientStub) RolesForSeries(ctx context.Context, seriesId string) (SeriesRoles, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roles[seriesId], nil
}

func (c *ClientStub) SetSeries(seriesId string, channelId string, roles SeriesRoles) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[seriesId] = channelId
	c.roles[seriesId] = roles
}

func (c *ClientStub) SetAssignError(userId string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignErrs[userId] = err
}

func (c *ClientStub) Assignments() []RoleAssignment {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]RoleAssignment, len(c.assignments))
	copy(result, c.assignments)
	return result
}
