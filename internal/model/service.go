package model

// Service: код продукта из закрытого каталога, по которому начисляется комиссия.
type Service string

const (
	ServiceOne  Service = "M-ONE"
	ServiceDuo  Service = "M-DUO"
	ServicePro  Service = "M-PRO"
	ServiceCorp Service = "M-CORP"
	ServiceSite Service = "M-SITE"
	ServiceSEO  Service = "M-SEO"
	ServiceAds  Service = "M-ADS"
)

// Services перечисляет каталог в порядке отображения.
var Services = []Service{
	ServiceOne,
	ServiceDuo,
	ServicePro,
	ServiceCorp,
	ServiceSite,
	ServiceSEO,
	ServiceAds,
}

// Valid сообщает, входит ли код в каталог.
func (s Service) Valid() bool {
	for _, known := range Services {
		if s == known {
			return true
		}
	}
	return false
}
