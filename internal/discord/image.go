package discord

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinImageSize = 16
	MaxImageSize = 4096
)

// ImageConfig holds the CDN URL templates. Placeholders are written as
// {name}; see DefaultImageConfig for the recognised names.
type ImageConfig struct {
	UserAvatar        string
	DefaultUserAvatar string
	GuildIcon         string
	// Format is used for static images, AnimatedFormat for hashes starting with "a_".
	Format         string
	AnimatedFormat string
}

// DefaultImageConfig returns Discord's CDN layout under baseURL, which must
// end with a slash.
func DefaultImageConfig(baseURL string) ImageConfig {
	return ImageConfig{
		UserAvatar:        baseURL + "avatars/{user_id}/{avatar_hash}.{format}?size={size}",
		DefaultUserAvatar: baseURL + "embed/avatars/{index}.png?size={size}",
		GuildIcon:         baseURL + "icons/{guild_id}/{icon_hash}.{format}?size={size}",
		Format:            "png",
		AnimatedFormat:    "gif",
	}
}

// CheckSize reports whether size is a power of two in [16, 4096].
func CheckSize(size int) error {
	if size < MinImageSize || size > MaxImageSize || size&(size-1) != 0 {
		return fmt.Errorf("discord: %w: size must be a power of two between %d and %d, got %d",
			ErrInvalidParameter, MinImageSize, MaxImageSize, size)
	}
	return nil
}

func (c ImageConfig) format(hash string) string {
	if isAnimated(hash) {
		return c.AnimatedFormat
	}
	return c.Format
}

func isAnimated(hash string) bool {
	return strings.HasPrefix(hash, "a_")
}

func expand(template string, pairs ...string) string {
	oldnew := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		oldnew = append(oldnew, "{"+pairs[i]+"}", pairs[i+1])
	}
	return strings.NewReplacer(oldnew...).Replace(template)
}

func sizeString(size int) string {
	return strconv.Itoa(size)
}
