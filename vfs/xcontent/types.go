package xcontent

import "fmt"

// ContentType classifies a content package.
type ContentType uint32

const (
	ContentSavedGame       ContentType = 0x00000001
	ContentMarketplace     ContentType = 0x00000002
	ContentPublisher       ContentType = 0x00000003
	ContentXbox360Title    ContentType = 0x00001000
	ContentIPTVPauseBuffer ContentType = 0x00002000
	ContentXNACommunity    ContentType = 0x00003000
	ContentInstalledGame   ContentType = 0x00004000
	ContentXboxTitle       ContentType = 0x00005000
	ContentSocialTitle     ContentType = 0x00006000
	ContentGamesOnDemand   ContentType = 0x00007000
	ContentSUStoragePack   ContentType = 0x00008000
	ContentAvatarItem      ContentType = 0x00009000
	ContentProfile         ContentType = 0x00010000
	ContentGamerPicture    ContentType = 0x00020000
	ContentTheme           ContentType = 0x00030000
	ContentCacheFile       ContentType = 0x00040000
	ContentStorageDownload ContentType = 0x00050000
	ContentXboxSavedGame   ContentType = 0x00060000
	ContentXboxDownload    ContentType = 0x00070000
	ContentGameDemo        ContentType = 0x00080000
	ContentVideo           ContentType = 0x00090000
	ContentGameTitle       ContentType = 0x000A0000
	ContentInstaller       ContentType = 0x000B0000
	ContentGameTrailer     ContentType = 0x000C0000
	ContentArcadeTitle     ContentType = 0x000D0000
	ContentXNA             ContentType = 0x000E0000
	ContentLicenseStore    ContentType = 0x000F0000
	ContentMovie           ContentType = 0x00100000
	ContentTV              ContentType = 0x00200000
	ContentMusicVideo      ContentType = 0x00300000
	ContentGameVideo       ContentType = 0x00400000
	ContentPodcastVideo    ContentType = 0x00500000
	ContentViralVideo      ContentType = 0x00600000
	ContentCommunityGame   ContentType = 0x02000000
)

var contentTypeNames = map[ContentType]string{
	ContentSavedGame:       "saved-game",
	ContentMarketplace:     "marketplace",
	ContentPublisher:       "publisher",
	ContentXbox360Title:    "xbox360-title",
	ContentIPTVPauseBuffer: "iptv-pause-buffer",
	ContentXNACommunity:    "xna-community",
	ContentInstalledGame:   "installed-game",
	ContentXboxTitle:       "xbox-title",
	ContentSocialTitle:     "social-title",
	ContentGamesOnDemand:   "games-on-demand",
	ContentSUStoragePack:   "su-storage-pack",
	ContentAvatarItem:      "avatar-item",
	ContentProfile:         "profile",
	ContentGamerPicture:    "gamer-picture",
	ContentTheme:           "theme",
	ContentCacheFile:       "cache-file",
	ContentStorageDownload: "storage-download",
	ContentXboxSavedGame:   "xbox-saved-game",
	ContentXboxDownload:    "xbox-download",
	ContentGameDemo:        "game-demo",
	ContentVideo:           "video",
	ContentGameTitle:       "game-title",
	ContentInstaller:       "installer",
	ContentGameTrailer:     "game-trailer",
	ContentArcadeTitle:     "arcade-title",
	ContentXNA:             "xna",
	ContentLicenseStore:    "license-store",
	ContentMovie:           "movie",
	ContentTV:              "tv",
	ContentMusicVideo:      "music-video",
	ContentGameVideo:       "game-video",
	ContentPodcastVideo:    "podcast-video",
	ContentViralVideo:      "viral-video",
	ContentCommunityGame:   "community-game",
}

func (t ContentType) String() string {
	if name, ok := contentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("content(0x%08X)", uint32(t))
}
