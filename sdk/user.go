package sdk

import (
	"context"
	"net/url"
)

// GetUserInfo gets the current user's info
func (c *Client) GetUserInfo(ctx context.Context) (*UserInfo, error) {
	var result UserInfo
	if err := c.get(ctx, "/user/info", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUserInfoById gets a user's info by Id
func (c *Client) GetUserInfoById(ctx context.Context, userId string) (*UserInfo, error) {
	var result UserInfo
	if err := c.get(ctx, "/user/info/"+url.PathEscape(userId), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
