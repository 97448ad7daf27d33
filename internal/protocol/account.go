package protocol

import (
	"context"
	"errors"
	"log/slog"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/auth"
	"github.com/thefall/sessionserver/internal/services/otp"
	"github.com/thefall/sessionserver/internal/services/session"
)

const (
	retTypeDict = "dict"
	retTypeList = "list"
	retTypeNone = "NoneType"
)

type getUserArgs struct {
	Username string `json:"username"`
	RetType  string `json:"ret_type"`
}

func (r *Router) getUser(ctx context.Context, c *call) (any, error) {
	var args getUserArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	notFound := &Reply{Return: "userdata", RetType: retTypeNone}
	if args.Username == "" {
		return notFound, nil
	}
	account, stats, err := r.auth.GetUser(ctx, args.Username)
	if errors.Is(err, model.ErrAccountNotFound) {
		return notFound, nil
	}
	if err != nil {
		return nil, err
	}

	user := newPublicUser(account.Username, account.DisplayName, account.Friends, stats)
	if args.RetType == retTypeList || args.RetType == "lst" {
		return &Reply{Return: "userdata", Result: user.list(), RetType: retTypeList}, nil
	}
	return &Reply{Return: "userdata", Result: user, RetType: retTypeDict}, nil
}

type loginArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *Router) login(ctx context.Context, c *call) (any, error) {
	var args loginArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}
	if args.Username == "" || args.Password == "" {
		return loginFailure(), nil
	}

	identity, stats, err := r.auth.Login(ctx, args.Username, args.Password)
	if errors.Is(err, model.ErrInvalidCredentials) {
		return loginFailure(), nil
	}
	if err != nil {
		return nil, err
	}

	r.rebind(c.conn.ID(), identity)
	return loginSuccess(identity, stats), nil
}

type registerArgs struct {
	DisplayName string `json:"displayname"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	OTP         Int    `json:"otp"`
}

func (r *Router) register(ctx context.Context, c *call) (any, error) {
	var args registerArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	conn := c.conn
	result, err := r.auth.Register(ctx, auth.Registration{
		DisplayName: args.DisplayName,
		Username:    args.Username,
		Email:       args.Email,
		Password:    args.Password,
		Code:        int(args.OTP),
	}, func(entry otp.Entry) {
		r.metrics.RecordOTPIssued(string(otp.KindRegister))
		r.pushCodeSent(conn, NotifyRegisterOTP, entry)
	})
	if err != nil {
		return nil, err
	}

	if result.Sent != nil {
		r.metrics.RecordOTPIssued(string(otp.KindRegister))
		r.pushCodeSent(conn, NotifyRegisterOTP, *result.Sent)
		return NotifyRegisterOTP, nil
	}

	r.rebind(conn.ID(), result.Identity)
	return loginSuccess(result.Identity, &model.Stats{Username: result.Identity.Username}), nil
}

type passwordCodeArgs struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type statusResult struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
}

func (r *Router) sendPasswordCode(ctx context.Context, c *call) (any, error) {
	var args passwordCodeArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	entry, err := r.auth.SendPasswordReset(ctx, args.Username, args.Email)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordOTPIssued(string(otp.KindPasswordReset))
	r.pushCodeSent(c.conn, NotifyPasswordOTP, entry)
	return statusResult{Status: true}, nil
}

type updatePasswordArgs struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	OTPCode  Int    `json:"otp_code"`
}

func (r *Router) updatePassword(ctx context.Context, c *call) (any, error) {
	var args updatePasswordArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	if err := r.auth.UpdatePassword(ctx, args.Username, args.Email, int(args.OTPCode), args.Password); err != nil {
		return nil, err
	}
	return statusResult{Status: true}, nil
}

func (r *Router) pushCodeSent(conn session.Conn, notify string, entry otp.Entry) {
	n := notification(notify)
	n.Exp = clock.Epoch(entry.ExpiresAt)
	if !conn.Send(Encode(n)) {
		r.logger.Warn("otp notification dropped",
			slog.String("conn_id", string(conn.ID())),
			slog.String("notify", notify))
	}
}
