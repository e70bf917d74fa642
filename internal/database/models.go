package database

import "github.com/NikitaDmitryuk/tube-proxy/internal/models"

type Download = models.Download
type DownloadProgress = models.DownloadProgress
type DownloadFilter = models.DownloadFilter
