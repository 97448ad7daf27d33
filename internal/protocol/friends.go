package protocol

import (
	"context"
	"errors"
	"slices"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/friends"
)

type friendResult struct {
	Result string `json:"result"`
	With   string `json:"with,omitempty"`
}

type listResult struct {
	Result []string `json:"result"`
}

type addFriendArgs struct {
	ToUser string `json:"to_user"`
}

func (r *Router) addFriend(ctx context.Context, c *call) (any, error) {
	var args addFriendArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	from := c.username()
	outcome, err := r.friends.AddFriend(ctx, from, args.ToUser)
	if errors.Is(err, model.ErrRequestPending) {
		return friendResult{Result: string(friends.AddSent)}, nil
	}
	if err != nil {
		return nil, err
	}
	if outcome == friends.AddSent {
		return friendResult{Result: string(outcome)}, nil
	}

	r.linkFriends(from, args.ToUser)
	r.pushFriendsUpdate(args.ToUser, from, EventFriendAdded)
	return friendResult{Result: string(outcome), With: args.ToUser}, nil
}

type removeFriendArgs struct {
	WithUser string `json:"with_user"`
}

func (r *Router) removeFriend(ctx context.Context, c *call) (any, error) {
	var args removeFriendArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	from := c.username()
	outcome, err := r.friends.RemoveFriend(ctx, from, args.WithUser)
	if err != nil {
		return nil, err
	}
	if outcome == friends.RemoveRemoved {
		r.unlinkFriends(from, args.WithUser)
		r.pushFriendsUpdate(args.WithUser, from, EventFriendRemoved)
	}
	return friendResult{Result: string(outcome), With: args.WithUser}, nil
}

func (r *Router) outboundRequests(ctx context.Context, c *call) (any, error) {
	users, err := r.friends.Outbound(ctx, c.username())
	if err != nil {
		return nil, err
	}
	return listResult{Result: nonNil(users)}, nil
}

func (r *Router) inboundRequests(ctx context.Context, c *call) (any, error) {
	users, err := r.friends.Inbound(ctx, c.username())
	if err != nil {
		return nil, err
	}
	return listResult{Result: nonNil(users)}, nil
}

// linkFriends mirrors a new friendship onto both users' live identities
func (r *Router) linkFriends(a, b string) {
	r.registry.UpdateUser(a, func(id *model.Identity) {
		if !slices.Contains(id.Friends, b) {
			id.Friends = append(id.Friends, b)
		}
	})
	r.registry.UpdateUser(b, func(id *model.Identity) {
		if !slices.Contains(id.Friends, a) {
			id.Friends = append(id.Friends, a)
		}
	})
}

// unlinkFriends mirrors a dissolved friendship onto both users' live identities
func (r *Router) unlinkFriends(a, b string) {
	r.registry.UpdateUser(a, func(id *model.Identity) {
		id.Friends = slices.DeleteFunc(id.Friends, func(f string) bool { return f == b })
	})
	r.registry.UpdateUser(b, func(id *model.Identity) {
		id.Friends = slices.DeleteFunc(id.Friends, func(f string) bool { return f == a })
	})
}

func (r *Router) pushFriendsUpdate(to, friend, event string) {
	n := notification(NotifyFriendsUpdate)
	n.Friend = friend
	n.Event = event
	r.registry.SendTo(to, Encode(n))
}
