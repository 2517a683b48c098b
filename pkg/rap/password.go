package rap

import (
	"context"

	"github.com/ineffectivecoder/cifsgooser/pkg/auth"
)

// SamOEMChangePassword changes the password of user. The new password
// travels obfuscated with the old password's LM hash, followed by a
// verifier built from both hashes.
func (c *Client) SamOEMChangePassword(ctx context.Context, user, oldPassword, newPassword string) error {
	req := newRequest(FuncSamOEMChangePassword, descPasswordParams, descPasswordData).
		zt(user).
		word(auth.ChangePasswordSize)

	_, err := c.call(ctx, "SamOEMChangePassword", req, auth.ChangePasswordPayload(oldPassword, newPassword))
	return err
}
