package otaxml

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"meridian/internal/shared/htngerr"
)

// ReservationStatus is the closed status set for reservation payloads.
type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationModified  ReservationStatus = "modified"
)

const (
	minReservationNights = 1
	maxReservationNights = 365
	maxSpecialRequests   = 20
)

// Wire values of ResStatus. Anything other than Cancel or Modify is treated
// as a new reservation on the inbound path.
var resStatusWire = map[ReservationStatus]string{
	ReservationConfirmed: "Commit",
	ReservationCancelled: "Cancel",
	ReservationModified:  "Modify",
}

// StatusFromResStatus maps an inbound ResStatus attribute to the closed set.
func StatusFromResStatus(resStatus string) ReservationStatus {
	switch resStatus {
	case "Cancel":
		return ReservationCancelled
	case "Modify":
		return ReservationModified
	default:
		return ReservationConfirmed
	}
}

type Guest struct {
	FirstName string
	LastName  string
}

type RoomStay struct {
	RoomTypeCode string
	CheckIn      time.Time
	CheckOut     time.Time
	Units        int
}

// Reservation is the DTO for one OTA_HotelResNotifRQ payload. Exactly one
// reservation travels per envelope.
type Reservation struct {
	HotelCode       string
	ConfirmationID  string
	Status          ReservationStatus
	Guests          []Guest
	RoomStays       []RoomStay
	SpecialRequests []string
	Extensions      []RawExtension
}

func (r Reservation) validate() *htngerr.Error {
	if _, ok := resStatusWire[r.Status]; !ok {
		return htngerr.Validation(fmt.Sprintf("unknown reservation status %q", r.Status))
	}
	if len(r.Guests) == 0 {
		return htngerr.Validation("reservation requires at least one guest")
	}
	for i, g := range r.Guests {
		if strings.TrimSpace(g.FirstName) == "" || strings.TrimSpace(g.LastName) == "" {
			return htngerr.Validation(fmt.Sprintf("guest %d requires non-empty first and last names", i))
		}
	}
	if len(r.RoomStays) == 0 {
		return htngerr.Validation("reservation requires at least one room stay")
	}
	for i, stay := range r.RoomStays {
		nights := int(stay.CheckOut.Sub(stay.CheckIn).Hours() / 24)
		if nights < minReservationNights || nights > maxReservationNights {
			return htngerr.Validation(fmt.Sprintf("room stay %d spans %d nights, allowed [%d, %d]", i, nights, minReservationNights, maxReservationNights))
		}
	}
	if len(r.SpecialRequests) > maxSpecialRequests {
		return htngerr.Validation(fmt.Sprintf("reservation carries %d special requests, limit is %d", len(r.SpecialRequests), maxSpecialRequests))
	}
	return nil
}

type resNotifRQ struct {
	XMLName      xml.Name        `xml:"OTA_HotelResNotifRQ"`
	Xmlns        string          `xml:"xmlns,attr"`
	EchoToken    string          `xml:"EchoToken,attr"`
	TimeStamp    string          `xml:"TimeStamp,attr"`
	Version      string          `xml:"Version,attr"`
	ResStatus    string          `xml:"ResStatus,attr"`
	Reservations resReservations `xml:"HotelReservations"`
}

type resReservations struct {
	Items []resReservation `xml:"HotelReservation"`
}

type resReservation struct {
	UniqueID   resUniqueID   `xml:"UniqueID"`
	RoomStays  []resRoomStay `xml:"RoomStays>RoomStay"`
	Guests     []resGuest    `xml:"ResGuests>ResGuest"`
	GlobalInfo *resGlobal    `xml:"ResGlobalInfo,omitempty"`
}

type resUniqueID struct {
	Type string `xml:"Type,attr"`
	ID   string `xml:"ID,attr"`
}

type resRoomStay struct {
	RoomType resRoomType `xml:"RoomTypes>RoomType"`
	TimeSpan resTimeSpan `xml:"TimeSpan"`
	Property resProperty `xml:"BasicPropertyInfo"`
}

type resRoomType struct {
	RoomTypeCode  string `xml:"RoomTypeCode,attr"`
	NumberOfUnits int    `xml:"NumberOfUnits,attr"`
}

type resTimeSpan struct {
	Start string `xml:"Start,attr"`
	End   string `xml:"End,attr"`
}

type resProperty struct {
	HotelCode string `xml:"HotelCode,attr"`
}

type resGuest struct {
	Name resPersonName `xml:"Profiles>ProfileInfo>Profile>Customer>PersonName"`
}

type resPersonName struct {
	GivenName string `xml:"GivenName"`
	Surname   string `xml:"Surname"`
}

type resGlobal struct {
	SpecialRequests []resText `xml:"SpecialRequests>SpecialRequest"`
}

type resText struct {
	Text string `xml:"Text"`
}

// BuildReservation validates the DTO and emits the payload XML.
func BuildReservation(res Reservation, hdr HeaderContext) ([]byte, *htngerr.Error) {
	if err := res.validate(); err != nil {
		return nil, err
	}
	doc := resNotifRQ{
		Xmlns:     nsOTA,
		EchoToken: hdr.echoToken(),
		TimeStamp: hdr.timestamp(),
		Version:   "1.0",
		ResStatus: resStatusWire[res.Status],
	}
	item := resReservation{
		UniqueID: resUniqueID{Type: "14", ID: res.ConfirmationID},
	}
	for _, stay := range res.RoomStays {
		item.RoomStays = append(item.RoomStays, resRoomStay{
			RoomType: resRoomType{RoomTypeCode: stay.RoomTypeCode, NumberOfUnits: stay.Units},
			TimeSpan: resTimeSpan{Start: formatDate(stay.CheckIn), End: formatDate(stay.CheckOut)},
			Property: resProperty{HotelCode: res.HotelCode},
		})
	}
	for _, guest := range res.Guests {
		item.Guests = append(item.Guests, resGuest{
			Name: resPersonName{GivenName: guest.FirstName, Surname: guest.LastName},
		})
	}
	if len(res.SpecialRequests) > 0 {
		global := &resGlobal{}
		for _, request := range res.SpecialRequests {
			global.SpecialRequests = append(global.SpecialRequests, resText{Text: request})
		}
		item.GlobalInfo = global
	}
	doc.Reservations.Items = []resReservation{item}

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "marshal reservation payload", err)
	}
	return out, nil
}

type resNotifParsed struct {
	XMLName      xml.Name `xml:"http://www.opentravel.org/OTA/2003/05 OTA_HotelResNotifRQ"`
	EchoToken    string   `xml:"EchoToken,attr"`
	ResStatus    string   `xml:"ResStatus,attr"`
	Reservations struct {
		Items []struct {
			UniqueID struct {
				ID string `xml:"ID,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 UniqueID"`
			RoomStays []struct {
				RoomType struct {
					RoomTypeCode  string `xml:"RoomTypeCode,attr"`
					NumberOfUnits int    `xml:"NumberOfUnits,attr"`
				} `xml:"http://www.opentravel.org/OTA/2003/05 RoomTypes>RoomType"`
				TimeSpan struct {
					Start string `xml:"Start,attr"`
					End   string `xml:"End,attr"`
				} `xml:"http://www.opentravel.org/OTA/2003/05 TimeSpan"`
				Property struct {
					HotelCode string `xml:"HotelCode,attr"`
				} `xml:"http://www.opentravel.org/OTA/2003/05 BasicPropertyInfo"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 RoomStays>RoomStay"`
			Guests []struct {
				Name struct {
					GivenName string `xml:"http://www.opentravel.org/OTA/2003/05 GivenName"`
					Surname   string `xml:"http://www.opentravel.org/OTA/2003/05 Surname"`
				} `xml:"http://www.opentravel.org/OTA/2003/05 Profiles>ProfileInfo>Profile>Customer>PersonName"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 ResGuests>ResGuest"`
			GlobalInfo struct {
				SpecialRequests []struct {
					Text string `xml:"http://www.opentravel.org/OTA/2003/05 Text"`
				} `xml:"http://www.opentravel.org/OTA/2003/05 SpecialRequests>SpecialRequest"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 ResGlobalInfo"`
		} `xml:"http://www.opentravel.org/OTA/2003/05 HotelReservation"`
	} `xml:"http://www.opentravel.org/OTA/2003/05 HotelReservations"`
	Extensions []RawExtension `xml:",any"`
}

// ParseReservation decodes a reservation payload and reports its ResStatus
// classification alongside the DTO.
func ParseReservation(payload []byte) (Reservation, *htngerr.Error) {
	var doc resNotifParsed
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return Reservation{}, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "parse reservation payload", err)
	}
	if len(doc.Reservations.Items) != 1 {
		return Reservation{}, htngerr.Validation(fmt.Sprintf("reservation payload carries %d reservations, expected exactly 1", len(doc.Reservations.Items)))
	}
	item := doc.Reservations.Items[0]
	res := Reservation{
		ConfirmationID: item.UniqueID.ID,
		Status:         StatusFromResStatus(doc.ResStatus),
	}
	for _, ext := range doc.Extensions {
		if ext.XMLName.Space != nsOTA {
			res.Extensions = append(res.Extensions, ext)
		}
	}
	for _, stay := range item.RoomStays {
		checkIn, err := parseDate(stay.TimeSpan.Start)
		if err != nil {
			return Reservation{}, htngerr.Validation("invalid room stay start date: " + stay.TimeSpan.Start)
		}
		checkOut, err := parseDate(stay.TimeSpan.End)
		if err != nil {
			return Reservation{}, htngerr.Validation("invalid room stay end date: " + stay.TimeSpan.End)
		}
		if res.HotelCode == "" {
			res.HotelCode = stay.Property.HotelCode
		}
		res.RoomStays = append(res.RoomStays, RoomStay{
			RoomTypeCode: stay.RoomType.RoomTypeCode,
			CheckIn:      checkIn,
			CheckOut:     checkOut,
			Units:        stay.RoomType.NumberOfUnits,
		})
	}
	for _, guest := range item.Guests {
		res.Guests = append(res.Guests, Guest{FirstName: guest.Name.GivenName, LastName: guest.Name.Surname})
	}
	for _, request := range item.GlobalInfo.SpecialRequests {
		res.SpecialRequests = append(res.SpecialRequests, request.Text)
	}
	return res, nil
}
