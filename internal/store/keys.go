package store

import "fmt"

// Redis key layout shared by all components.
const (
	EventsKey                   = "meetup_events"
	SeriesKey                   = "event_series"
	UsersKey                    = "meetup_users"
	DiscordChannelsKey          = "discord_channels"
	OrganizerAccessTokenKey     = "meetup_access_token"
	OrganizerRefreshTokenKey    = "meetup_refresh_token"
	OrganizerLastRefreshTimeKey = "meetup_access_token:last_refresh_time"
	OrganizerNextRefreshTimeKey = "meetup_access_token_refresh_time"
	OrganizerRefreshLockKey     = "lock:meetup_refresh_token"
	UserTokensAccessTokenField  = "access_token"
	UserTokensRefreshTokenField = "refresh_token"
	EventNameField              = "name"
	EventTimeField              = "time"
	EventLinkField              = "link"
	EventUrlnameField           = "urlname"
)

func EventKey(eventId string) string {
	return fmt.Sprintf("meetup_event:%s", eventId)
}

func EventSeriesKey(eventId string) string {
	return fmt.Sprintf("meetup_event:%s:event_series", eventId)
}

func EventUsersKey(eventId string) string {
	return fmt.Sprintf("meetup_event:%s:meetup_users", eventId)
}

func EventHostsKey(eventId string) string {
	return fmt.Sprintf("meetup_event:%s:meetup_hosts", eventId)
}

func SeriesEventsKey(seriesId string) string {
	return fmt.Sprintf("event_series:%s:meetup_events", seriesId)
}

func SeriesChannelKey(seriesId string) string {
	return fmt.Sprintf("event_series:%s:discord_channel", seriesId)
}

func SeriesRoleKey(seriesId string) string {
	return fmt.Sprintf("event_series:%s:discord_role", seriesId)
}

func SeriesHostRoleKey(seriesId string) string {
	return fmt.Sprintf("event_series:%s:discord_host_role", seriesId)
}

func SeriesOnlineKey(seriesId string) string {
	return fmt.Sprintf("event_series:%s:is_online", seriesId)
}

func ChannelSeriesKey(channelId string) string {
	return fmt.Sprintf("discord_channel:%s:event_series", channelId)
}

func SeriesTypeKey(seriesId string) string {
	return fmt.Sprintf("event_series:%s:type", seriesId)
}

func UserDiscordKey(meetupUserId int64) string {
	return fmt.Sprintf("meetup_user:%d:discord_user", meetupUserId)
}

func DiscordUserMeetupKey(discordUserId string) string {
	return fmt.Sprintf("discord_user:%s:meetup_user", discordUserId)
}

func UserTokensKey(meetupUserId int64) string {
	return fmt.Sprintf("meetup_user:%d:oauth2_tokens", meetupUserId)
}

func UserLastRefreshTimeKey(meetupUserId int64) string {
	return fmt.Sprintf("meetup_user:%d:oauth2_tokens:last_refresh_time", meetupUserId)
}

func UserRefreshLockKey(meetupUserId int64) string {
	return fmt.Sprintf("lock:meetup_user:%d:oauth2_tokens", meetupUserId)
}

func LinkingKey(linkingId string) string {
	return fmt.Sprintf("meetup_linking:%s:discord_user", linkingId)
}
