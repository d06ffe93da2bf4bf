package user

import (
	"context"

	"github.com/trezcool/shule/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service that sends its emails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			repo:     repo,
			mailSvc:  mailSvc,
			tokenGen: NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
