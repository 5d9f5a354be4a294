package common

// ProjectName names the service in notification exchanges and metrics.
const ProjectName = "tooltool"

// ScopePrefix is prepended to every permission scope checked by the service.
const ScopePrefix = "project:releng:services/tooltool/api"

// ScopeManage grants administrative file operations.
const ScopeManage = ScopePrefix + "/manage"

// RouteCheckFilePendingUploads is the routing key of "verify this digest" notifications.
const RouteCheckFilePendingUploads = "check_file_pending_uploads"

// UploadScope returns the scope needed to upload files with the given visibility.
func UploadScope(visibility string) string {
	return ScopePrefix + "/upload/" + visibility
}

// DownloadScope returns the scope needed to download files with the given visibility.
func DownloadScope(visibility string) string {
	return ScopePrefix + "/download/" + visibility
}
