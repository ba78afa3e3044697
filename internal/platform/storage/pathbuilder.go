package storage

import (
	"fmt"
	"path"
	"strings"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposeUpload       AssetPurpose = "upload"
	PurposeOrderFile    AssetPurpose = "order-file"
	PurposeProductImage AssetPurpose = "product-image"
)

const (
	// TempPrefix holds uploads that have not yet been attached to an order.
	TempPrefix  = "tmp/"
	orderPrefix = "orders/"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	UploadID  string
	OrderID   string
	ProductID string
	FileName  string
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var pathBuilders = map[AssetPurpose]PathBuilder{
	PurposeUpload:       buildUploadPath,
	PurposeOrderFile:    buildOrderFilePath,
	PurposeProductImage: buildProductImagePath,
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	builder, ok := pathBuilders[purpose]
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

// OrderPrefix returns the directory holding committed files of an order.
func OrderPrefix(orderID string) (string, error) {
	id, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	return orderPrefix + id + "/", nil
}

// IsTempPath reports whether the key points at an uncommitted upload.
func IsTempPath(key string) bool {
	return strings.HasPrefix(key, TempPrefix)
}

// BaseName returns the last path segment of an object key.
func BaseName(key string) string {
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// ValidateKey rejects keys that could escape the storage root.
func ValidateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("storage: object key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("storage: object key %q is not relative", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("storage: object key %q contains invalid segment", key)
		}
	}
	return nil
}

func buildUploadPath(params PathParams) (string, error) {
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s/%s", TempPrefix, uploadID, fileName), nil
}

func buildOrderFilePath(params PathParams) (string, error) {
	prefix, err := OrderPrefix(params.OrderID)
	if err != nil {
		return "", err
	}
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s-%s", prefix, uploadID, fileName), nil
}

func buildProductImagePath(params PathParams) (string, error) {
	productID, err := validateSegment("productID", params.ProductID)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(params.FileName)))
	if strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return fmt.Sprintf("products/%s/image%s", productID, ext), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
